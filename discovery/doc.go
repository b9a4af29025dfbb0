// Package discovery enumerates attached Warped Pinball boards.
//
// # Device Modes
//
// A board presents one of two USB identities:
//
//   - Application mode: a MicroPython USB CDC serial port with the
//     Raspberry Pi vendor ID (0x2E8A) and the MicroPython product ID
//     (0x0005).
//   - Bootloader mode: an RPI-RP2 mass-storage volume recognizable by the
//     INFO_UF2.TXT file in its root.
//
// Discovery reports both, tagged with their mode, so callers can handle
// each state exhaustively.
//
// # Usage
//
//	scanner := discovery.NewScanner()
//
//	devices, err := scanner.ListCandidates(ctx)
//
//	// Block until exactly one board appears:
//	dev, err := scanner.Watch(ctx, 10*time.Second)
//	if errors.Is(err, discovery.ErrDeviceNotFound) { ... }
//
// Watch and the WaitFor* helpers use bounded fixed-interval polling, never
// indefinite blocking, and honor context cancellation.
//
// # Probing
//
// When a serial port needs confirmation, Probe opens it, enters the raw
// REPL, and asks the runtime to identify itself. Probe connections are
// always closed before it returns; discovery never leaves ports held open.
package discovery
