package flash

import (
	"time"

	"github.com/warped-pinball/trenchcoat/catalog"
	"github.com/warped-pinball/trenchcoat/discovery"
)

// State identifies the position of a flash session in its lifecycle.
//
// The session moves strictly forward:
//
//	Discovered → EnteringBootloader → AwaitingBootloaderReady →
//	Transferring → VerifyingWrite → Rebooting → Flashed
//
// StateFailed is reachable from every non-terminal state and is terminal.
type State string

const (
	// StateDiscovered means a device and firmware have been selected
	// and the artifact signature has been verified
	StateDiscovered State = "discovered"

	// StateEnteringBootloader means the mode-switch command is being
	// issued over the application-mode serial channel
	StateEnteringBootloader State = "entering_bootloader"

	// StateAwaitingBootloaderReady means the session is polling for the
	// device to re-enumerate under its bootloader identity
	StateAwaitingBootloaderReady State = "awaiting_bootloader_ready"

	// StateTransferring means firmware blocks are being written
	StateTransferring State = "transferring"

	// StateVerifyingWrite means the session is confirming the bootloader
	// accepted the image
	StateVerifyingWrite State = "verifying_write"

	// StateRebooting means the session is waiting for the application
	// identity to reappear
	StateRebooting State = "rebooting"

	// StateFlashed is the terminal success state
	StateFlashed State = "flashed"

	// StateFailed is the terminal failure state
	StateFailed State = "failed"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateFlashed || s == StateFailed
}

// Event is one entry in the ordered progress stream of a flash session.
// The stream terminates with a single event whose State is terminal.
type Event struct {
	// Session is the flash session ID
	Session string

	// State is the session state this event reports
	State State

	// Device is the selected device, once known
	Device discovery.Device

	// Artifact is the selected firmware metadata, once known
	Artifact catalog.ArtifactInfo

	// Percentage is the overall completion estimate (0.0 to 100.0)
	Percentage float64

	// BytesWritten is the payload bytes transferred so far
	BytesWritten int

	// TotalBytes is the total payload size being transferred
	TotalBytes int

	// Elapsed is the time since the session started
	Elapsed time.Duration

	// Message carries operator-facing detail, including the expected
	// physical device state on failure
	Message string

	// Err is the failure reason; set only when State is StateFailed
	Err error
}

// Logger is an optional logging interface that can be provided to the
// orchestrator. This allows integration with any logging framework.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
