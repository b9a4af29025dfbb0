package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// interruptSettleDelay gives the board time to process the interrupt
	// before raw mode is requested.
	interruptSettleDelay = 100 * time.Millisecond

	// readPollInterval is the pause between reads while output is pending.
	readPollInterval = 10 * time.Millisecond

	// DefaultExchangeTimeout bounds a single REPL exchange.
	DefaultExchangeTimeout = 5 * time.Second
)

// Shell drives raw-REPL exchanges over a serial channel.
//
// Shell does not own the channel; the caller remains responsible for
// closing it. A Shell serves one channel and is not safe for concurrent use.
type Shell struct {
	device  io.ReadWriter
	timeout time.Duration
}

// NewShell creates a Shell for the given serial channel.
//
// Example:
//
//	port, _ := serial.Open("/dev/ttyACM0", &serial.Mode{BaudRate: protocol.BaudRate})
//	sh := protocol.NewShell(port)
func NewShell(device io.ReadWriter) *Shell {
	if device == nil {
		panic("device cannot be nil")
	}

	return &Shell{
		device:  device,
		timeout: DefaultExchangeTimeout,
	}
}

// SetExchangeTimeout overrides the per-exchange timeout.
func (s *Shell) SetExchangeTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.timeout = timeout
	}
}

// EnterRawREPL interrupts the running program and switches the REPL into
// raw mode, waiting for the board to confirm with the raw mode banner.
func (s *Shell) EnterRawREPL(ctx context.Context) error {
	if err := s.writeAll(BuildInterrupt()); err != nil {
		return fmt.Errorf("send interrupt: %w", err)
	}

	time.Sleep(interruptSettleDelay)

	if err := s.writeAll(BuildEnterRawREPL()); err != nil {
		return fmt.Errorf("request raw mode: %w", err)
	}

	if _, err := s.readUntil(ctx, ContainsRawPrompt); err != nil {
		return fmt.Errorf("await raw mode prompt: %w", err)
	}

	return nil
}

// Exec runs a script in the raw REPL and returns its stdout.
// Error output from the board is returned as a ProtocolError.
func (s *Shell) Exec(ctx context.Context, script string) ([]byte, error) {
	frame, err := BuildExec(script)
	if err != nil {
		return nil, err
	}

	if err := s.writeAll(frame); err != nil {
		return nil, fmt.Errorf("send script: %w", err)
	}

	buf, err := s.readUntil(ctx, ResponseComplete)
	if err != nil {
		return nil, fmt.Errorf("await response: %w", err)
	}

	stdout, errOut, err := ParseExecResponse(buf)
	if err != nil {
		return nil, err
	}

	if len(errOut) > 0 {
		return nil, &ProtocolError{Operation: "exec", Output: string(errOut)}
	}

	return stdout, nil
}

// ExecNoWait sends a script without waiting for a response.
// Used for scripts that reboot the board, which never answer.
func (s *Shell) ExecNoWait(script string) error {
	frame, err := BuildExec(script)
	if err != nil {
		return err
	}

	return s.writeAll(frame)
}

// writeAll writes the full sequence, rejecting short writes.
func (s *Shell) writeAll(seq []byte) error {
	n, err := s.device.Write(seq)
	if err != nil {
		return err
	}
	if n != len(seq) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(seq))
	}
	return nil
}

// readUntil accumulates output until done reports a complete buffer,
// the exchange timeout elapses, or the context is cancelled.
func (s *Shell) readUntil(ctx context.Context, done func([]byte) bool) ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	buf := make([]byte, 0, DefaultReadBufferSize)
	chunk := make([]byte, 256)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out after %s", s.timeout)
		}

		n, err := s.device.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if done(buf) {
				return buf, nil
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 {
			time.Sleep(readPollInterval)
		}
	}
}
