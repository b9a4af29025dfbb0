package flash

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/warped-pinball/trenchcoat/catalog"
	"github.com/warped-pinball/trenchcoat/discovery"
	"github.com/warped-pinball/trenchcoat/protocol"
	"github.com/warped-pinball/trenchcoat/uf2"
)

// ErrSessionActive indicates a second Flash call while a session is
// already driving a device.
var ErrSessionActive = errors.New("another flash session is active")

// session is one flash operation: one device, one artifact, one pass
// through the state machine. Created by Orchestrator.Flash and discarded
// at operation end.
type session struct {
	orch           *Orchestrator
	cfg            Config
	selectDevice   DeviceSelector
	selectFirmware FirmwareSelector
	events         chan<- Event

	id       string
	state    State
	device   discovery.Device
	artifact *catalog.Artifact
	firmware *uf2.Firmware
	written  int
	total    int
	started  time.Time
}

// run drives the session to a terminal state and closes the event stream.
func (s *session) run(ctx context.Context) {
	defer close(s.events)

	s.id = uuid.NewString()
	s.started = time.Now()

	if !s.orch.acquire() {
		s.fail(ErrSessionActive, "no device was touched")
		return
	}
	defer s.orch.release()

	if err := s.acquire(ctx); err != nil {
		return
	}
	s.transfer(ctx)
}

// acquire runs the pre-transfer pipeline: discovery and catalog listing
// concurrently, then fetch, then mandatory signature verification.
// Returns a non-nil error after emitting the failure event.
func (s *session) acquire(ctx context.Context) error {
	var (
		wg      sync.WaitGroup
		dev     discovery.Device
		devErr  error
		info    catalog.ArtifactInfo
		infoErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		dev, devErr = s.discoverDevice(ctx)
	}()
	go func() {
		defer wg.Done()
		info, infoErr = s.selectArtifact(ctx)
	}()
	wg.Wait()

	if devErr != nil {
		s.fail(devErr, "no device was touched")
		return devErr
	}
	if infoErr != nil {
		s.fail(infoErr, "no device was touched")
		return infoErr
	}
	s.device = dev

	// The device is confirmed present; only now is the payload fetched.
	art, err := s.orch.source.Fetch(ctx, info)
	if err != nil {
		s.fail(err, "no data was sent to the device")
		return err
	}
	s.artifact = art

	// Mandatory and unconditional. A rejected artifact is fatal for these
	// bytes: no retry, no bypass, no transfer channel is ever opened.
	if err := s.orch.verifier.Verify(art.Payload, art.Signature); err != nil {
		s.fail(err, "no data was sent to the device")
		return err
	}

	fw, err := uf2.ParseBytes(art.Payload)
	if err != nil {
		err = fmt.Errorf("%w: firmware image is not valid UF2: %v", catalog.ErrArtifactUnavailable, err)
		s.fail(err, "no data was sent to the device")
		return err
	}
	if fw.FamilyID != 0 && !fw.TargetsFamily(uf2.FamilyRP2040) {
		err = fmt.Errorf("%w: firmware targets family 0x%08X, not RP2040",
			catalog.ErrArtifactUnavailable, fw.FamilyID)
		s.fail(err, "no data was sent to the device")
		return err
	}
	s.firmware = fw
	s.total = fw.TotalPayload()

	s.setState(StateDiscovered, 2, fmt.Sprintf("selected %s, firmware %s %s",
		s.device, info.Board, info.Version))
	return nil
}

// discoverDevice polls for candidates within the discovery timeout and
// applies the caller's selector or the configured ambiguity policy.
func (s *session) discoverDevice(ctx context.Context) (discovery.Device, error) {
	deadline := time.Now().Add(s.cfg.DiscoveryTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return discovery.Device{}, err
		}

		candidates, err := s.orch.finder.ListCandidates(ctx)
		if err != nil {
			return discovery.Device{}, err
		}

		if len(candidates) > 0 {
			dev, err := s.pickDevice(candidates)
			if err == nil {
				return dev, nil
			}
			// A selector waiting for a specific port keeps polling
			// until the deadline; other selection errors are final.
			if !errors.Is(err, discovery.ErrDeviceNotFound) {
				return discovery.Device{}, err
			}
		}

		if time.Now().After(deadline) {
			return discovery.Device{}, discovery.ErrDeviceNotFound
		}

		select {
		case <-ctx.Done():
			return discovery.Device{}, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *session) pickDevice(candidates []discovery.Device) (discovery.Device, error) {
	if s.selectDevice != nil {
		return s.selectDevice(candidates)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch s.cfg.Ambiguous {
	case AmbiguousPickFirst:
		return candidates[0], nil
	default:
		return discovery.Device{}, &discovery.AmbiguousDeviceError{Candidates: candidates}
	}
}

// selectArtifact lists available versions and applies the caller's
// firmware selector. Listing only; no payload is downloaded here.
func (s *session) selectArtifact(ctx context.Context) (catalog.ArtifactInfo, error) {
	available, err := s.orch.source.ListVersions(ctx, s.cfg.Board)
	if err != nil {
		return catalog.ArtifactInfo{}, err
	}

	sel := s.selectFirmware
	if sel == nil {
		sel = SelectLatest()
	}
	return sel(available)
}

// transfer drives the device through the bootloader protocol.
func (s *session) transfer(ctx context.Context) {
	// Mode dispatch is exhaustive: a device in bootloader mode skips the
	// mode switch, an unclassified one is probed first.
	mode := s.device.Mode
	if mode == discovery.ModeUnknown {
		probed, err := s.orch.finder.Probe(ctx, s.device)
		if err != nil {
			s.fail(err, "device did not respond to identification, re-run to retry")
			return
		}
		mode = probed
	}

	switch mode {
	case discovery.ModeApplication:
		if s.cancelled(ctx, "device was not modified") {
			return
		}
		s.setState(StateEnteringBootloader, 5, "switching device into bootloader mode")
		if err := s.enterBootloader(ctx); err != nil {
			s.fail(&BootloaderTimeoutError{
				Timeout:     s.cfg.ExchangeTimeout,
				DeviceState: "device may still be in application mode, re-run to retry",
				Err:         err,
			}, "")
			return
		}
	case discovery.ModeBootloader:
		// Already flashable; go straight to waiting for the volume.
	default:
		s.fail(fmt.Errorf("%w: device mode could not be determined", discovery.ErrDeviceNotFound),
			"device was not modified")
		return
	}

	if s.cancelled(ctx, "device is in bootloader mode, re-run to retry") {
		return
	}
	s.setState(StateAwaitingBootloaderReady, 10, "waiting for bootloader to re-enumerate")

	boot, err := s.orch.finder.WaitForBootloader(ctx, s.cfg.BootloaderReadyTimeout)
	if err != nil {
		if s.cancelled(ctx, "device state depends on whether the mode switch was processed") {
			return
		}
		s.fail(&BootloaderTimeoutError{
			Timeout:     s.cfg.BootloaderReadyTimeout,
			DeviceState: "device did not re-enumerate; it may still be running the application",
			Err:         err,
		}, "")
		return
	}
	s.device = boot

	// Let the host finish mounting the fresh volume before writing.
	select {
	case <-ctx.Done():
		_ = s.cancelled(ctx, "device is in bootloader mode, re-run to retry")
		return
	case <-time.After(s.cfg.SettleDelay):
	}

	// Last clean cancellation point: nothing has been written yet.
	if s.cancelled(ctx, "device is in bootloader mode, re-run to retry") {
		return
	}

	s.writeImage(ctx, boot)
}

// writeImage streams the verified image and confirms the device applied it.
// From here on, plain context cancellation is ignored unless the caller
// opted into unsafe cancel: an interrupted image can brick the board.
func (s *session) writeImage(ctx context.Context, boot discovery.Device) {
	s.setState(StateTransferring, 10, fmt.Sprintf("writing %d blocks", len(s.firmware.Blocks)))

	target, err := s.orch.openTarget(boot)
	if err != nil {
		s.fail(&TransferError{Block: -1, Err: err},
			"device left in bootloader mode, re-run to retry")
		return
	}
	defer func() { _ = target.Close() }()

	tctx := context.WithoutCancel(ctx)
	if s.cfg.AllowUnsafeCancel {
		tctx = ctx
	}

	lastPct := -1
	for i, block := range s.firmware.Blocks {
		if s.cfg.AllowUnsafeCancel && ctx.Err() != nil {
			s.fail(&CancelledError{State: StateTransferring},
				"image partially written; device may not boot until re-flashed")
			return
		}

		if err := s.writeBlock(tctx, target, block); err != nil {
			s.fail(&TransferError{Block: i, Attempts: s.cfg.ChunkRetryLimit + 1, Err: err},
				"device left in bootloader mode, re-run to retry")
			return
		}
		s.written += len(block.Data)

		// Transfer spans 10% to 90%; emit once per whole percent.
		pct := 10 + int(80*float64(i+1)/float64(len(s.firmware.Blocks)))
		if pct != lastPct {
			lastPct = pct
			s.emitProgress(StateTransferring, float64(pct), "")
		}
	}

	s.setState(StateVerifyingWrite, 92, "confirming bootloader accepted the image")
	if err := target.Commit(tctx); err != nil {
		s.fail(&TransferError{Block: -1, Err: err},
			"device left in bootloader mode, re-run to retry")
		return
	}
	if err := s.orch.finder.WaitForDetach(tctx, boot.Port, s.cfg.BootloaderReadyTimeout); err != nil {
		s.fail(&TransferError{Block: -1, Err: fmt.Errorf("bootloader did not apply the image: %w", err)},
			"device still in bootloader mode, re-run to retry")
		return
	}

	s.setState(StateRebooting, 95, "waiting for device to boot the new firmware")
	app, err := s.orch.finder.WaitForApplication(tctx, s.cfg.PostFlashTimeout)
	if err != nil {
		s.fail(&PostFlashVerifyTimeoutError{Timeout: s.cfg.PostFlashTimeout},
			"unplug the device, plug it back in, and check it boots")
		return
	}
	s.device = app

	s.state = StateFlashed
	s.emitProgress(StateFlashed, 100, fmt.Sprintf("flashed %s %s onto %s",
		s.artifact.Board, s.artifact.Version, app.Port))
	s.orch.logInfo("flash complete",
		"session", s.id,
		"port", app.Port,
		"version", s.artifact.Version,
		"bytes", s.written,
		"elapsed", time.Since(s.started).String(),
	)
}

// writeBlock writes one block with the configured bounded retry budget.
func (s *session) writeBlock(ctx context.Context, target BlockTarget, block *uf2.Block) error {
	op := func() error {
		return target.WriteBlock(ctx, block)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(s.cfg.ChunkRetryDelay),
			uint64(s.cfg.ChunkRetryLimit),
		),
		ctx,
	)
	return backoff.Retry(op, policy)
}

// enterBootloader issues the mode-switch over the application serial
// channel. The port is released before returning on every path.
func (s *session) enterBootloader(ctx context.Context) error {
	port, err := s.orch.finder.OpenPort(s.device)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.device.Port, err)
	}
	defer func() { _ = port.Close() }()

	sh := protocol.NewShell(port)
	sh.SetExchangeTimeout(s.cfg.ExchangeTimeout)

	if err := sh.EnterRawREPL(ctx); err != nil {
		return err
	}

	// The board reboots on execution and never answers.
	return sh.ExecNoWait(protocol.ScriptEnterBootloader)
}

// cancelled emits the terminal Cancelled failure when ctx is done.
func (s *session) cancelled(ctx context.Context, hint string) bool {
	if ctx.Err() == nil {
		return false
	}
	s.fail(&CancelledError{State: s.state}, hint)
	return true
}

// setState advances the machine and reports the new state.
func (s *session) setState(state State, pct float64, msg string) {
	s.state = state
	s.orch.logDebug("state transition", "session", s.id, "state", state)
	s.emitProgress(state, pct, msg)
}

// fail moves the session to the terminal failure state. The failure kind
// is preserved as-is so callers can distinguish every reason.
func (s *session) fail(reason error, hint string) {
	if errors.Is(reason, context.Canceled) || errors.Is(reason, context.DeadlineExceeded) {
		reason = &CancelledError{State: s.state}
	}

	s.orch.logError("flash failed",
		"session", s.id,
		"state", string(s.state),
		"error", reason,
	)

	s.state = StateFailed
	s.events <- Event{
		Session:      s.id,
		State:        StateFailed,
		Device:       s.device,
		Artifact:     s.artifactInfo(),
		BytesWritten: s.written,
		TotalBytes:   s.total,
		Elapsed:      time.Since(s.started),
		Message:      hint,
		Err:          reason,
	}
}

func (s *session) emitProgress(state State, pct float64, msg string) {
	s.events <- Event{
		Session:      s.id,
		State:        state,
		Device:       s.device,
		Artifact:     s.artifactInfo(),
		Percentage:   pct,
		BytesWritten: s.written,
		TotalBytes:   s.total,
		Elapsed:      time.Since(s.started),
		Message:      msg,
	}
}

func (s *session) artifactInfo() catalog.ArtifactInfo {
	if s.artifact == nil {
		return catalog.ArtifactInfo{}
	}
	return s.artifact.ArtifactInfo
}
