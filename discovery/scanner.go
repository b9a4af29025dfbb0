package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/warped-pinball/trenchcoat/protocol"
)

// Logger is an optional logging interface for scanner operations.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config holds the scanner configuration.
type Config struct {
	// PollInterval is the fixed interval between discovery polls
	PollInterval time.Duration

	// ProbeTimeout bounds a single identification exchange
	ProbeTimeout time.Duration

	// Logger is used for logging operations (optional)
	Logger Logger

	// Enumeration and IO hooks, replaceable for tests
	enumerate func() ([]*enumerator.PortDetails, error)
	volumes   func() ([]string, error)
	openPort  func(name string) (io.ReadWriteCloser, error)
}

func defaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		ProbeTimeout: 3 * time.Second,
		enumerate:    enumerator.GetDetailedPortsList,
		volumes:      listBootVolumes,
		openPort:     openSerialPort,
	}
}

// openSerialPort opens a board's CDC serial port at the REPL baud rate.
// A short read timeout keeps discovery polls responsive.
func openSerialPort(name string) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: protocol.BaudRate})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}

// Option is a functional option for configuring the Scanner.
type Option func(*Config)

// WithPollInterval sets the interval between discovery polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		if interval > 0 {
			c.PollInterval = interval
		}
	}
}

// WithProbeTimeout sets the timeout for an identification exchange.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ProbeTimeout = timeout
		}
	}
}

// WithLogger sets a logger for scanner operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithPortEnumerator replaces the serial port enumerator. Used in tests.
func WithPortEnumerator(fn func() ([]*enumerator.PortDetails, error)) Option {
	return func(c *Config) {
		if fn != nil {
			c.enumerate = fn
		}
	}
}

// WithVolumeLister replaces the bootloader volume lister. Used in tests.
func WithVolumeLister(fn func() ([]string, error)) Option {
	return func(c *Config) {
		if fn != nil {
			c.volumes = fn
		}
	}
}

// WithPortOpener replaces the serial port opener. Used in tests.
func WithPortOpener(fn func(name string) (io.ReadWriteCloser, error)) Option {
	return func(c *Config) {
		if fn != nil {
			c.openPort = fn
		}
	}
}

// Scanner discovers attached boards in application and bootloader mode.
//
// Scanner holds no open resources between calls; probe connections are
// closed before each method returns.
type Scanner struct {
	cfg Config
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts ...Option) *Scanner {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scanner{cfg: cfg}
}

// ListCandidates enumerates all attached boards matching the hardware
// allow-list, in both modes.
func (s *Scanner) ListCandidates(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.cfg.enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var devices []Device
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid, okV := parseHexID(p.VID)
		pid, okP := parseHexID(p.PID)
		if !okV || !okP || !allowed(vid, pid) {
			continue
		}
		devices = append(devices, Device{
			Port:      p.Name,
			VendorID:  vid,
			ProductID: pid,
			Serial:    p.SerialNumber,
			Mode:      ModeApplication,
		})
	}

	vols, err := s.cfg.volumes()
	if err != nil {
		return nil, fmt.Errorf("scan bootloader volumes: %w", err)
	}
	for _, v := range vols {
		devices = append(devices, Device{Port: v, Mode: ModeBootloader})
	}

	s.logDebug("discovery poll", "candidates", len(devices))
	return devices, nil
}

// Watch polls until exactly one candidate board is attached.
// Returns ErrDeviceNotFound when none appear within the timeout and an
// AmbiguousDeviceError when several match at once.
func (s *Scanner) Watch(ctx context.Context, timeout time.Duration) (Device, error) {
	return s.pollFor(ctx, timeout, func(devices []Device) (Device, bool, error) {
		switch len(devices) {
		case 0:
			return Device{}, false, nil
		case 1:
			return devices[0], true, nil
		default:
			return Device{}, false, &AmbiguousDeviceError{Candidates: devices}
		}
	})
}

// WaitForBootloader polls until a board appears in bootloader mode.
func (s *Scanner) WaitForBootloader(ctx context.Context, timeout time.Duration) (Device, error) {
	return s.pollFor(ctx, timeout, func(devices []Device) (Device, bool, error) {
		for _, d := range devices {
			if d.Mode == ModeBootloader {
				return d, true, nil
			}
		}
		return Device{}, false, nil
	})
}

// WaitForApplication polls until a board appears in application mode.
func (s *Scanner) WaitForApplication(ctx context.Context, timeout time.Duration) (Device, error) {
	return s.pollFor(ctx, timeout, func(devices []Device) (Device, bool, error) {
		for _, d := range devices {
			if d.Mode == ModeApplication {
				return d, true, nil
			}
		}
		return Device{}, false, nil
	})
}

// WaitForDetach polls until the given port is no longer attached.
// A device rebooting out of bootloader mode drops its volume first.
func (s *Scanner) WaitForDetach(ctx context.Context, port string, timeout time.Duration) error {
	_, err := s.pollFor(ctx, timeout, func(devices []Device) (Device, bool, error) {
		for _, d := range devices {
			if d.Port == port {
				return Device{}, false, nil
			}
		}
		return Device{}, true, nil
	})
	return err
}

// errNotYet signals a poll that has not found its device yet.
var errNotYet = errors.New("not yet")

// pollFor runs pick against discovery snapshots at a fixed interval until
// it succeeds, the timeout elapses, or the context is cancelled.
func (s *Scanner) pollFor(ctx context.Context, timeout time.Duration, pick func([]Device) (Device, bool, error)) (Device, error) {
	var found Device

	op := func() error {
		devices, err := s.ListCandidates(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		d, ok, err := pick(devices)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotYet
		}
		found = d
		return nil
	}

	attempts := uint64(timeout / s.cfg.PollInterval)
	if attempts == 0 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.PollInterval), attempts),
		ctx,
	)

	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, errNotYet) {
			return Device{}, ErrDeviceNotFound
		}
		return Device{}, err
	}
	return found, nil
}

// Probe opens an identification exchange with a serial candidate to confirm
// it runs MicroPython. The probe connection is closed before returning.
func (s *Scanner) Probe(ctx context.Context, dev Device) (Mode, error) {
	if dev.Mode == ModeBootloader {
		return ModeBootloader, nil
	}

	rw, err := s.cfg.openPort(dev.Port)
	if err != nil {
		return ModeUnknown, fmt.Errorf("open %s: %w", dev.Port, err)
	}
	defer func() { _ = rw.Close() }()

	sh := protocol.NewShell(rw)
	sh.SetExchangeTimeout(s.cfg.ProbeTimeout)

	if err := sh.EnterRawREPL(ctx); err != nil {
		return ModeUnknown, fmt.Errorf("probe %s: %w", dev.Port, err)
	}

	out, err := sh.Exec(ctx, protocol.ScriptIdentify)
	if err != nil {
		return ModeUnknown, fmt.Errorf("probe %s: %w", dev.Port, err)
	}

	if strings.Contains(strings.ToLower(string(out)), protocol.IdentifyResponse) {
		return ModeApplication, nil
	}
	return ModeUnknown, nil
}

// OpenPort opens the serial port of an application-mode device.
// The caller owns the returned handle and must close it.
func (s *Scanner) OpenPort(dev Device) (io.ReadWriteCloser, error) {
	if dev.Mode != ModeApplication {
		return nil, fmt.Errorf("cannot open serial port of %s device %s", dev.Mode, dev.Port)
	}
	return s.cfg.openPort(dev.Port)
}

func (s *Scanner) logDebug(msg string, keysAndValues ...interface{}) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

// parseHexID parses a USB VID/PID hex string as reported by the enumerator.
func parseHexID(s string) (uint16, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
