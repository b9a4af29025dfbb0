// Package flash orchestrates a complete firmware update for a Warped
// Pinball controller board.
//
// # Overview
//
// This package composes device discovery, the firmware catalog, and
// signature verification into one end-to-end operation:
//   - Discovering the target device while the firmware listing loads
//   - Fetching and verifying the signed artifact
//   - Switching the board into bootloader mode over its serial channel
//   - Streaming the UF2 image block by block with bounded retries
//   - Confirming the bootloader applied the image and the new firmware boots
//
// # Basic Usage
//
// The simplest way to flash a board with the newest release:
//
//	scanner := discovery.NewScanner()
//	source, err := catalog.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	orch := flash.New(scanner, source)
//	result := orch.Run(context.Background(), nil, nil)
//	if result.Err != nil {
//	    log.Fatal(result.Err)
//	}
//
// # Progress Tracking
//
// Flash returns an ordered stream of events, one per state transition plus
// transfer progress. The stream ends with exactly one terminal event:
//
//	for ev := range orch.Flash(ctx, nil, nil) {
//	    fmt.Printf("[%s] %.0f%% %s\n", ev.State, ev.Percentage, ev.Message)
//	}
//
// # Selecting Device and Firmware
//
// Both selectors are optional. Pass flash.SelectPort to pin a serial port,
// flash.SelectVersion for an exact release, or custom functions for an
// interactive chooser:
//
//	result := orch.Run(ctx,
//	    flash.SelectPort("/dev/ttyACM0"),
//	    flash.SelectVersion("1.4.2"),
//	)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	orch := flash.New(scanner, source,
//	    flash.WithBoard("vector"),
//	    flash.WithDiscoveryTimeout(15*time.Second),
//	    flash.WithChunkRetries(3, 200*time.Millisecond),
//	    flash.WithAmbiguousPolicy(flash.AmbiguousFail),
//	    flash.WithLogger(myLogger),
//	)
//
// # Cancellation
//
// Context cancellation aborts cleanly at any point before the transfer
// begins; the device is left untouched or sitting in bootloader mode,
// ready for another attempt. Once blocks are being written the session
// runs to completion regardless of the context, because an interrupted
// image can leave the board unbootable. WithUnsafeCancel opts into
// honoring cancellation mid-transfer anyway.
//
// # Error Handling
//
// Terminal failures carry typed errors that distinguish every reason:
//
//	var bte *flash.BootloaderTimeoutError
//	if errors.As(result.Err, &bte) {
//	    fmt.Println("device state:", bte.DeviceState)
//	}
//
// Signature rejections surface as *signing.RejectedError before any data
// reaches the device; discovery failures as discovery.ErrDeviceNotFound or
// *discovery.AmbiguousDeviceError; missing artifacts as
// catalog.ErrArtifactUnavailable.
package flash
