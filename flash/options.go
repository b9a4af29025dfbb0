package flash

import "time"

// DefaultBoard is the board identifier flashed when none is configured.
const DefaultBoard = "vector"

// AmbiguousPolicy controls what happens when discovery finds several
// candidate devices and the caller supplied no device selector.
type AmbiguousPolicy int

const (
	// AmbiguousFail surfaces an AmbiguousDeviceError so the presentation
	// layer can ask the operator to choose
	AmbiguousFail AmbiguousPolicy = iota

	// AmbiguousPickFirst flashes the first candidate in enumeration order
	AmbiguousPickFirst
)

// Config holds the orchestrator configuration.
type Config struct {
	// Board is the target board identifier
	Board string

	// DiscoveryTimeout bounds the wait for a candidate device
	DiscoveryTimeout time.Duration

	// BootloaderReadyTimeout bounds the wait for bootloader re-enumeration
	// and for the bootloader to accept a written image
	BootloaderReadyTimeout time.Duration

	// PostFlashTimeout bounds the wait for the application identity to
	// reappear after flashing
	PostFlashTimeout time.Duration

	// PollInterval is the fixed interval between discovery polls
	PollInterval time.Duration

	// SettleDelay is the pause after the bootloader volume appears before
	// writing, giving the host time to finish mounting it
	SettleDelay time.Duration

	// ExchangeTimeout bounds a single REPL exchange
	ExchangeTimeout time.Duration

	// ChunkRetryLimit is the number of retries per block write before the
	// whole session fails
	ChunkRetryLimit int

	// ChunkRetryDelay is the pause between retries of a failed block write
	ChunkRetryDelay time.Duration

	// Ambiguous selects the policy for multiple matching devices
	Ambiguous AmbiguousPolicy

	// AllowUnsafeCancel honors context cancellation during Transferring.
	// Off by default: interrupting a partial image write can leave the
	// device unbootable.
	AllowUnsafeCancel bool

	// Logger is used for logging operations (optional)
	Logger Logger
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Board:                  DefaultBoard,
		DiscoveryTimeout:       10 * time.Second,
		BootloaderReadyTimeout: 30 * time.Second,
		PostFlashTimeout:       60 * time.Second,
		PollInterval:           500 * time.Millisecond,
		SettleDelay:            2 * time.Second,
		ExchangeTimeout:        5 * time.Second,
		ChunkRetryLimit:        3,
		ChunkRetryDelay:        200 * time.Millisecond,
	}
}

// Option is a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithBoard sets the target board identifier.
func WithBoard(board string) Option {
	return func(o *Orchestrator) {
		if board != "" {
			o.cfg.Board = board
		}
	}
}

// WithDiscoveryTimeout bounds the wait for a candidate device.
func WithDiscoveryTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.cfg.DiscoveryTimeout = timeout
		}
	}
}

// WithBootloaderReadyTimeout bounds the wait for bootloader re-enumeration.
func WithBootloaderReadyTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.cfg.BootloaderReadyTimeout = timeout
		}
	}
}

// WithPostFlashTimeout bounds the wait for the application to reappear.
func WithPostFlashTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.cfg.PostFlashTimeout = timeout
		}
	}
}

// WithPollInterval sets the interval between discovery polls.
func WithPollInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.cfg.PollInterval = interval
		}
	}
}

// WithSettleDelay sets the pause before writing to a fresh bootloader volume.
func WithSettleDelay(delay time.Duration) Option {
	return func(o *Orchestrator) {
		if delay >= 0 {
			o.cfg.SettleDelay = delay
		}
	}
}

// WithChunkRetries sets the retry budget per block write. Zero values
// keep the defaults.
func WithChunkRetries(retries int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		if retries > 0 {
			o.cfg.ChunkRetryLimit = retries
		}
		if delay > 0 {
			o.cfg.ChunkRetryDelay = delay
		}
	}
}

// WithAmbiguousPolicy selects the policy for multiple matching devices.
func WithAmbiguousPolicy(policy AmbiguousPolicy) Option {
	return func(o *Orchestrator) { o.cfg.Ambiguous = policy }
}

// WithUnsafeCancel honors cancellation during Transferring. The caller
// explicitly acknowledges that interrupting a partial image write can
// leave the device unbootable.
func WithUnsafeCancel(allow bool) Option {
	return func(o *Orchestrator) { o.cfg.AllowUnsafeCancel = allow }
}

// WithLogger sets a logger for orchestrator operations.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) { o.cfg.Logger = logger }
}

// WithVerifier replaces the signature verifier. The verifier is always
// invoked before any transfer; this hook only substitutes the key material,
// it cannot skip the check.
func WithVerifier(v Verifier) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.verifier = v
		}
	}
}

// WithTargetOpener replaces how a bootloader-mode device is opened for
// block writes. Used in tests.
func WithTargetOpener(fn TargetOpener) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.openTarget = fn
		}
	}
}
