package flash

import (
	"fmt"
	"time"
)

// BootloaderTimeoutError indicates the device never presented its
// bootloader identity within the configured timeout.
type BootloaderTimeoutError struct {
	// Timeout is the bound that was exceeded
	Timeout time.Duration

	// DeviceState describes the physical state the operator should expect
	DeviceState string

	// Err is the underlying error, if any
	Err error
}

func (e *BootloaderTimeoutError) Error() string {
	msg := fmt.Sprintf("bootloader did not become ready within %s", e.Timeout)
	if e.DeviceState != "" {
		msg += ": " + e.DeviceState
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BootloaderTimeoutError) Unwrap() error { return e.Err }

// TransferError indicates the firmware image could not be fully written
// and acknowledged. Partial progress is discarded; a new session restarts
// the transfer from the beginning.
type TransferError struct {
	// Block is the image block that failed, -1 when not block specific
	Block int

	// Attempts is the number of write attempts made for that block
	Attempts int

	// Err is the underlying error
	Err error
}

func (e *TransferError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("transfer failed at block %d after %d attempts: %v",
			e.Block, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transfer failed: %v", e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PostFlashVerifyTimeoutError indicates the device did not reappear in
// application mode after the image was written. The firmware may in fact
// be intact; the operation cannot confirm it, so it is reported as an
// error requiring manual confirmation.
type PostFlashVerifyTimeoutError struct {
	Timeout time.Duration
}

func (e *PostFlashVerifyTimeoutError) Error() string {
	return fmt.Sprintf("device did not reappear within %s after flashing; "+
		"the firmware may be intact, confirm the board manually", e.Timeout)
}

// CancelledError indicates the caller cancelled the session.
// State records where the cancellation took effect, which tells the
// operator whether the device was modified.
type CancelledError struct {
	State State
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("flash cancelled during %s", e.State)
}
