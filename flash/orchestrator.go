package flash

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/warped-pinball/trenchcoat/catalog"
	"github.com/warped-pinball/trenchcoat/discovery"
	"github.com/warped-pinball/trenchcoat/signing"
)

// DeviceFinder is the discovery surface the orchestrator needs.
// *discovery.Scanner implements it.
type DeviceFinder interface {
	ListCandidates(ctx context.Context) ([]discovery.Device, error)
	WaitForBootloader(ctx context.Context, timeout time.Duration) (discovery.Device, error)
	WaitForApplication(ctx context.Context, timeout time.Duration) (discovery.Device, error)
	WaitForDetach(ctx context.Context, port string, timeout time.Duration) error
	Probe(ctx context.Context, dev discovery.Device) (discovery.Mode, error)
	OpenPort(dev discovery.Device) (io.ReadWriteCloser, error)
}

// ArtifactSource is the catalog surface the orchestrator needs.
// *catalog.Catalog implements it.
type ArtifactSource interface {
	ListVersions(ctx context.Context, board string) ([]catalog.ArtifactInfo, error)
	Fetch(ctx context.Context, info catalog.ArtifactInfo) (*catalog.Artifact, error)
}

// Verifier checks a detached signature over an artifact payload.
type Verifier interface {
	Verify(payload, signature []byte) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(payload, signature []byte) error

// Verify implements Verifier.
func (f VerifierFunc) Verify(payload, signature []byte) error {
	return f(payload, signature)
}

// DeviceSelector picks the device to flash from the discovered candidates.
// The presentation layer supplies one when the operator chooses by hand;
// a nil selector applies the configured ambiguity policy.
type DeviceSelector func(candidates []discovery.Device) (discovery.Device, error)

// SelectPort returns a selector that picks the candidate on the given
// port, in either mode.
func SelectPort(port string) DeviceSelector {
	return func(candidates []discovery.Device) (discovery.Device, error) {
		for _, d := range candidates {
			if d.Port == port {
				return d, nil
			}
		}
		return discovery.Device{}, fmt.Errorf("%w: port %s did not match any candidate",
			discovery.ErrDeviceNotFound, port)
	}
}

// FirmwareSelector picks the firmware version from the available listing,
// which is ordered newest first.
type FirmwareSelector func(available []catalog.ArtifactInfo) (catalog.ArtifactInfo, error)

// SelectLatest returns a selector that picks the newest available version.
func SelectLatest() FirmwareSelector {
	return func(available []catalog.ArtifactInfo) (catalog.ArtifactInfo, error) {
		if len(available) == 0 {
			return catalog.ArtifactInfo{}, fmt.Errorf("%w: no firmware versions available",
				catalog.ErrArtifactUnavailable)
		}
		return available[0], nil
	}
}

// SelectVersion returns a selector that picks an exact version string.
func SelectVersion(version string) FirmwareSelector {
	return func(available []catalog.ArtifactInfo) (catalog.ArtifactInfo, error) {
		for _, info := range available {
			if info.Version == version {
				return info, nil
			}
		}
		return catalog.ArtifactInfo{}, fmt.Errorf("%w: version %s not found in any source",
			catalog.ErrArtifactUnavailable, version)
	}
}

// Orchestrator composes discovery, the firmware catalog, signature
// verification, and the transfer state machine into one end-to-end flash
// operation.
//
// One Orchestrator drives at most one session at a time: the serial channel
// and the bootloader volume are exclusive resources.
type Orchestrator struct {
	cfg        Config
	finder     DeviceFinder
	source     ArtifactSource
	verifier   Verifier
	openTarget TargetOpener

	// busy guards against a second concurrent session
	busy chan struct{}
}

// New creates an Orchestrator with the given collaborators and options.
//
// Example:
//
//	orch := flash.New(discovery.NewScanner(), catalog.New(),
//	    flash.WithDiscoveryTimeout(15*time.Second),
//	    flash.WithChunkRetries(3, 200*time.Millisecond),
//	)
func New(finder DeviceFinder, source ArtifactSource, opts ...Option) *Orchestrator {
	if finder == nil {
		panic("finder cannot be nil")
	}
	if source == nil {
		panic("source cannot be nil")
	}

	o := &Orchestrator{
		cfg:        defaultConfig(),
		finder:     finder,
		source:     source,
		verifier:   VerifierFunc(signing.Verify),
		openTarget: openVolumeTarget,
		busy:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// eventBufferSize is the progress channel buffer. Consumers that fall
// behind block the session rather than losing ordering.
const eventBufferSize = 64

// Flash runs one complete flash operation and returns its ordered progress
// stream. The stream ends with exactly one terminal event (StateFlashed or
// StateFailed) and is then closed. The caller must drain the channel.
//
// Either selector may be nil: the device falls back to the configured
// ambiguity policy, the firmware to the newest available version.
//
// Cancellation through ctx aborts cleanly before Transferring. During
// Transferring it is ignored unless WithUnsafeCancel was set, since a
// partially written image can leave the device unbootable.
func (o *Orchestrator) Flash(ctx context.Context, selectDevice DeviceSelector, selectFirmware FirmwareSelector) <-chan Event {
	events := make(chan Event, eventBufferSize)

	s := &session{
		orch:           o,
		cfg:            o.cfg,
		selectDevice:   selectDevice,
		selectFirmware: selectFirmware,
		events:         events,
	}

	go s.run(ctx)
	return events
}

// Run is a convenience wrapper that drains the progress stream and returns
// the terminal event.
func (o *Orchestrator) Run(ctx context.Context, selectDevice DeviceSelector, selectFirmware FirmwareSelector) Event {
	var last Event
	for ev := range o.Flash(ctx, selectDevice, selectFirmware) {
		last = ev
	}
	return last
}

// acquire reserves the orchestrator for one session.
func (o *Orchestrator) acquire() bool {
	select {
	case o.busy <- struct{}{}:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) release() {
	<-o.busy
}

func (o *Orchestrator) logDebug(msg string, keysAndValues ...interface{}) {
	if o.cfg.Logger != nil {
		o.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

func (o *Orchestrator) logInfo(msg string, keysAndValues ...interface{}) {
	if o.cfg.Logger != nil {
		o.cfg.Logger.Info(msg, keysAndValues...)
	}
}

func (o *Orchestrator) logError(msg string, keysAndValues ...interface{}) {
	if o.cfg.Logger != nil {
		o.cfg.Logger.Error(msg, keysAndValues...)
	}
}
