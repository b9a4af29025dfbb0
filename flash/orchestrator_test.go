package flash

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warped-pinball/trenchcoat/catalog"
	"github.com/warped-pinball/trenchcoat/discovery"
	"github.com/warped-pinball/trenchcoat/protocol"
	"github.com/warped-pinball/trenchcoat/signing"
	"github.com/warped-pinball/trenchcoat/uf2"
)

// buildImage builds a well-formed n-block RP2040 UF2 image.
func buildImage(n int) []byte {
	img := make([]byte, 0, n*uf2.BlockSize)
	for i := 0; i < n; i++ {
		raw := make([]byte, uf2.BlockSize)
		binary.LittleEndian.PutUint32(raw[0:], uf2.MagicStart0)
		binary.LittleEndian.PutUint32(raw[4:], uf2.MagicStart1)
		binary.LittleEndian.PutUint32(raw[8:], uf2.FlagFamilyIDPresent)
		binary.LittleEndian.PutUint32(raw[12:], 0x10000000+uint32(i)*256)
		binary.LittleEndian.PutUint32(raw[16:], 256)
		binary.LittleEndian.PutUint32(raw[20:], uint32(i))
		binary.LittleEndian.PutUint32(raw[24:], uint32(n))
		binary.LittleEndian.PutUint32(raw[28:], uf2.FamilyRP2040)
		for j := 0; j < 256; j++ {
			raw[32+j] = byte(i + j)
		}
		binary.LittleEndian.PutUint32(raw[uf2.BlockSize-4:], uf2.MagicEnd)
		img = append(img, raw...)
	}
	return img
}

// signedArtifact signs payload with a fresh key and returns the source
// plus an option wiring the matching verifier.
func signedArtifact(t *testing.T, payload []byte) (*stubSource, Option) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	src := &stubSource{payload: payload, signature: sig}
	opt := WithVerifier(VerifierFunc(func(payload, signature []byte) error {
		return signing.VerifyWithKey(&key.PublicKey, payload, signature)
	}))
	return src, opt
}

// stubSource serves one artifact and counts fetches.
type stubSource struct {
	mu         sync.Mutex
	payload    []byte
	signature  []byte
	listErr    error
	fetchCount int
}

func (s *stubSource) ListVersions(ctx context.Context, board string) ([]catalog.ArtifactInfo, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []catalog.ArtifactInfo{{Version: "1.4.0", Board: board, Source: catalog.SourceBundled}}, nil
}

func (s *stubSource) Fetch(ctx context.Context, info catalog.ArtifactInfo) (*catalog.Artifact, error) {
	s.mu.Lock()
	s.fetchCount++
	s.mu.Unlock()
	return &catalog.Artifact{ArtifactInfo: info, Payload: s.payload, Signature: s.signature}, nil
}

func (s *stubSource) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCount
}

// simBoard is a stateful fake of one attached board. The serial side
// understands the raw REPL; the mode flips to bootloader when the
// mode-switch script executes and back to application after commit.
type simBoard struct {
	mu        sync.Mutex
	inBoot    bool
	applied   bool
	portOpens int
}

func (b *simBoard) enterBootloader() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inBoot = true
}

func (b *simBoard) apply() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inBoot = false
	b.applied = true
}

func (b *simBoard) bootloader() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inBoot
}

// simSerial is the board's REPL channel.
type simSerial struct {
	board   *simBoard
	mu      sync.Mutex
	pending bytes.Buffer
	closed  bool
}

func (s *simSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Contains(p, []byte{protocol.CtrlA}) {
		s.pending.WriteString(protocol.RawPrompt + "\r\n>")
	}
	if bytes.Contains(p, []byte("machine.bootloader")) {
		s.board.enterBootloader()
	}
	return len(p), nil
}

func (s *simSerial) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() == 0 {
		return 0, nil
	}
	return s.pending.Read(p)
}

func (s *simSerial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// simFinder presents the board the way the real scanner would.
type simFinder struct {
	board *simBoard
}

func (f *simFinder) appDevice() discovery.Device {
	return discovery.Device{
		Port:      "/dev/ttyACM0",
		VendorID:  discovery.VendorIDRaspberryPi,
		ProductID: discovery.ProductIDMicroPython,
		Mode:      discovery.ModeApplication,
	}
}

func (f *simFinder) bootDevice() discovery.Device {
	return discovery.Device{Port: "/media/RPI-RP2", Mode: discovery.ModeBootloader}
}

func (f *simFinder) ListCandidates(ctx context.Context) ([]discovery.Device, error) {
	if f.board.bootloader() {
		return []discovery.Device{f.bootDevice()}, nil
	}
	return []discovery.Device{f.appDevice()}, nil
}

func (f *simFinder) WaitForBootloader(ctx context.Context, timeout time.Duration) (discovery.Device, error) {
	deadline := time.Now().Add(timeout)
	for !f.board.bootloader() {
		if time.Now().After(deadline) {
			return discovery.Device{}, discovery.ErrDeviceNotFound
		}
		time.Sleep(time.Millisecond)
	}
	return f.bootDevice(), nil
}

func (f *simFinder) WaitForApplication(ctx context.Context, timeout time.Duration) (discovery.Device, error) {
	deadline := time.Now().Add(timeout)
	for f.board.bootloader() {
		if time.Now().After(deadline) {
			return discovery.Device{}, discovery.ErrDeviceNotFound
		}
		time.Sleep(time.Millisecond)
	}
	return f.appDevice(), nil
}

func (f *simFinder) WaitForDetach(ctx context.Context, port string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for f.board.bootloader() {
		if time.Now().After(deadline) {
			return discovery.ErrDeviceNotFound
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (f *simFinder) Probe(ctx context.Context, dev discovery.Device) (discovery.Mode, error) {
	return dev.Mode, nil
}

func (f *simFinder) OpenPort(dev discovery.Device) (io.ReadWriteCloser, error) {
	f.board.mu.Lock()
	f.board.portOpens++
	f.board.mu.Unlock()
	return &simSerial{board: f.board}, nil
}

// memTarget records written blocks; commit applies the image to the board.
type memTarget struct {
	board     *simBoard
	mu        sync.Mutex
	blocks    []*uf2.Block
	committed bool
	closed    bool
	writeErr  func(blockNo int, attempt int) error
	attempts  map[int]int
}

func (m *memTarget) WriteBlock(ctx context.Context, block *uf2.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = make(map[int]int)
	}
	no := int(block.BlockNo)
	m.attempts[no]++
	if m.writeErr != nil {
		if err := m.writeErr(no, m.attempts[no]); err != nil {
			return err
		}
	}
	m.blocks = append(m.blocks, block)
	return nil
}

func (m *memTarget) Commit(ctx context.Context) error {
	m.mu.Lock()
	m.committed = true
	m.mu.Unlock()
	m.board.apply()
	return nil
}

func (m *memTarget) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// fastOptions keeps test sessions quick.
func fastOptions(extra ...Option) []Option {
	opts := []Option{
		WithDiscoveryTimeout(time.Second),
		WithBootloaderReadyTimeout(time.Second),
		WithPostFlashTimeout(time.Second),
		WithPollInterval(time.Millisecond),
		WithSettleDelay(0),
		WithChunkRetries(2, time.Millisecond),
	}
	return append(opts, extra...)
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var all []Event
	for ev := range events {
		all = append(all, ev)
	}
	require.NotEmpty(t, all)
	return all
}

func states(events []Event) []State {
	var out []State
	for _, ev := range events {
		if len(out) == 0 || out[len(out)-1] != ev.State {
			out = append(out, ev.State)
		}
	}
	return out
}

func TestFlashFromApplicationMode(t *testing.T) {
	board := &simBoard{}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(8))
	target := &memTarget{board: board}

	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) {
			assert.Equal(t, discovery.ModeBootloader, dev.Mode)
			return target, nil
		}),
	)...)

	events := collect(t, orch.Flash(context.Background(), nil, nil))
	last := events[len(events)-1]
	require.NoError(t, last.Err)
	require.Equal(t, StateFlashed, last.State)

	assert.Equal(t, []State{
		StateDiscovered,
		StateEnteringBootloader,
		StateAwaitingBootloaderReady,
		StateTransferring,
		StateVerifyingWrite,
		StateRebooting,
		StateFlashed,
	}, states(events))

	// Every block arrived, in order, with its exact wire bytes.
	require.Len(t, target.blocks, 8)
	img := buildImage(8)
	for i, blk := range target.blocks {
		assert.Equal(t, uint32(i), blk.BlockNo)
		assert.Equal(t, img[i*uf2.BlockSize:(i+1)*uf2.BlockSize], blk.Raw)
	}
	assert.True(t, target.committed)
	assert.True(t, target.closed)
	assert.True(t, board.applied)

	// One session ID spans the stream; progress never moves backwards.
	sessionID := events[0].Session
	require.NotEmpty(t, sessionID)
	lastPct := 0.0
	for _, ev := range events {
		assert.Equal(t, sessionID, ev.Session)
		assert.GreaterOrEqual(t, ev.Percentage, lastPct)
		lastPct = ev.Percentage
	}
	assert.Equal(t, 100.0, last.Percentage)
	assert.Equal(t, 8*256, last.BytesWritten)
}

func TestFlashFromBootloaderMode(t *testing.T) {
	// A board already in bootloader mode skips the mode switch entirely.
	board := &simBoard{inBoot: true}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(2))
	target := &memTarget{board: board}

	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) { return target, nil }),
	)...)

	events := collect(t, orch.Flash(context.Background(), nil, nil))
	last := events[len(events)-1]
	require.Equal(t, StateFlashed, last.State)

	got := states(events)
	assert.NotContains(t, got, StateEnteringBootloader)
	assert.Equal(t, 0, board.portOpens)
}

func TestFlashRejectsTamperedArtifact(t *testing.T) {
	board := &simBoard{}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(2))
	source.payload[100] ^= 0x01 // flip one bit after signing

	targetOpened := false
	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) {
			targetOpened = true
			return &memTarget{board: board}, nil
		}),
	)...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)

	var rejected *signing.RejectedError
	require.ErrorAs(t, last.Err, &rejected)

	// Nothing touched the device.
	assert.False(t, targetOpened)
	assert.Equal(t, 0, board.portOpens)
	assert.Contains(t, last.Message, "no data was sent")
}

func TestFlashNoDeviceFetchesNothing(t *testing.T) {
	finder := &stubFinder{
		list: func(ctx context.Context) ([]discovery.Device, error) { return nil, nil },
	}
	source, verifier := signedArtifact(t, buildImage(2))

	orch := New(finder, source, fastOptions(verifier, WithDiscoveryTimeout(30*time.Millisecond))...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)
	require.ErrorIs(t, last.Err, discovery.ErrDeviceNotFound)

	// The payload is only fetched once a device is confirmed present.
	assert.Equal(t, 0, source.fetches())
}

func TestFlashAmbiguousDevices(t *testing.T) {
	two := []discovery.Device{
		{Port: "/dev/ttyACM0", Mode: discovery.ModeApplication},
		{Port: "/dev/ttyACM1", Mode: discovery.ModeApplication},
	}
	finder := &stubFinder{
		list: func(ctx context.Context) ([]discovery.Device, error) { return two, nil },
	}
	source, verifier := signedArtifact(t, buildImage(2))

	orch := New(finder, source, fastOptions(verifier)...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)

	var amb *discovery.AmbiguousDeviceError
	require.ErrorAs(t, last.Err, &amb)
	assert.Len(t, amb.Candidates, 2)
}

func TestFlashSelectPort(t *testing.T) {
	board := &simBoard{inBoot: true}
	boot := discovery.Device{Port: "/media/RPI-RP2", Mode: discovery.ModeBootloader}
	other := discovery.Device{Port: "/dev/ttyACM9", Mode: discovery.ModeApplication}

	finder := &stubFinder{
		list: func(ctx context.Context) ([]discovery.Device, error) {
			return []discovery.Device{other, boot}, nil
		},
		waitBoot:   func() (discovery.Device, error) { return boot, nil },
		waitApp:    func() (discovery.Device, error) { return other, nil },
		waitDetach: func() error { return nil },
	}
	source, verifier := signedArtifact(t, buildImage(2))
	target := &memTarget{board: board}

	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) { return target, nil }),
	)...)

	last := orch.Run(context.Background(), SelectPort("/media/RPI-RP2"), nil)
	require.NoError(t, last.Err)
	assert.Equal(t, StateFlashed, last.State)
}

func TestFlashPickFirstPolicy(t *testing.T) {
	board := &simBoard{inBoot: true}
	boot := discovery.Device{Port: "/media/RPI-RP2", Mode: discovery.ModeBootloader}
	other := discovery.Device{Port: "/media/RPI-RP2-2", Mode: discovery.ModeBootloader}

	finder := &stubFinder{
		list: func(ctx context.Context) ([]discovery.Device, error) {
			return []discovery.Device{boot, other}, nil
		},
		waitBoot:   func() (discovery.Device, error) { return boot, nil },
		waitApp:    func() (discovery.Device, error) { return discovery.Device{Port: "/dev/ttyACM0", Mode: discovery.ModeApplication}, nil },
		waitDetach: func() error { return nil },
	}
	source, verifier := signedArtifact(t, buildImage(2))
	target := &memTarget{board: board}

	orch := New(finder, source, fastOptions(
		verifier,
		WithAmbiguousPolicy(AmbiguousPickFirst),
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) { return target, nil }),
	)...)

	last := orch.Run(context.Background(), nil, nil)
	require.NoError(t, last.Err)
	assert.Equal(t, StateFlashed, last.State)
}

func TestFlashTransferFailureExhaustsRetries(t *testing.T) {
	board := &simBoard{inBoot: true}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(4))

	target := &memTarget{
		board: board,
		writeErr: func(blockNo, attempt int) error {
			if blockNo == 2 {
				return errors.New("I/O error")
			}
			return nil
		},
	}

	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) { return target, nil }),
	)...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)

	var terr *TransferError
	require.ErrorAs(t, last.Err, &terr)
	assert.Equal(t, 2, terr.Block)
	assert.Equal(t, 3, terr.Attempts) // 1 try + 2 retries
	assert.Equal(t, 3, target.attempts[2])
	assert.True(t, target.closed)
}

func TestFlashTransferRetrySucceeds(t *testing.T) {
	board := &simBoard{inBoot: true}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(4))

	target := &memTarget{
		board: board,
		writeErr: func(blockNo, attempt int) error {
			if blockNo == 1 && attempt < 3 {
				return errors.New("transient I/O error")
			}
			return nil
		},
	}

	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) { return target, nil }),
	)...)

	last := orch.Run(context.Background(), nil, nil)
	require.NoError(t, last.Err)
	assert.Equal(t, StateFlashed, last.State)
	assert.Len(t, target.blocks, 4)
}

func TestFlashCancelledBeforeTransfer(t *testing.T) {
	board := &simBoard{}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(finder, source, fastOptions(
		verifier,
		WithTargetOpener(func(dev discovery.Device) (BlockTarget, error) {
			t.Error("target opened after cancellation")
			return &memTarget{board: board}, nil
		}),
	)...)

	last := orch.Run(ctx, nil, nil)
	require.Equal(t, StateFailed, last.State)

	var cerr *CancelledError
	require.ErrorAs(t, last.Err, &cerr)
}

func TestFlashBootloaderNeverAppears(t *testing.T) {
	// The serial side accepts the mode switch but the board never
	// re-enumerates as a bootloader volume.
	app := discovery.Device{Port: "/dev/ttyACM0", Mode: discovery.ModeApplication}
	finder := &stubFinder{
		list:     func(ctx context.Context) ([]discovery.Device, error) { return []discovery.Device{app}, nil },
		waitBoot: func() (discovery.Device, error) { return discovery.Device{}, discovery.ErrDeviceNotFound },
		open: func(dev discovery.Device) (io.ReadWriteCloser, error) {
			return &simSerial{board: &simBoard{}}, nil
		},
	}
	source, verifier := signedArtifact(t, buildImage(2))

	orch := New(finder, source, fastOptions(verifier, WithBootloaderReadyTimeout(20*time.Millisecond))...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)

	var bte *BootloaderTimeoutError
	require.ErrorAs(t, last.Err, &bte)
	assert.NotEmpty(t, bte.DeviceState)
}

func TestFlashSecondSessionRejected(t *testing.T) {
	board := &simBoard{}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, buildImage(2))

	orch := New(finder, source, fastOptions(verifier)...)

	// Hold the session slot, then start a session.
	require.True(t, orch.acquire())
	defer orch.release()

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)
	require.ErrorIs(t, last.Err, ErrSessionActive)
}

func TestFlashInvalidImageRejected(t *testing.T) {
	// Signed but not a UF2 image.
	board := &simBoard{}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, []byte("this is not firmware"))

	orch := New(finder, source, fastOptions(verifier)...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)
	require.ErrorIs(t, last.Err, catalog.ErrArtifactUnavailable)
	assert.Equal(t, 0, board.portOpens)
}

func TestFlashWrongFamilyRejected(t *testing.T) {
	img := buildImage(2)
	// Rewrite both family IDs consistently to a non-RP2040 family.
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint32(img[i*uf2.BlockSize+28:], 0x12345678)
	}

	board := &simBoard{}
	finder := &simFinder{board: board}
	source, verifier := signedArtifact(t, img)

	orch := New(finder, source, fastOptions(verifier)...)

	last := orch.Run(context.Background(), nil, nil)
	require.Equal(t, StateFailed, last.State)
	require.ErrorIs(t, last.Err, catalog.ErrArtifactUnavailable)
	assert.Contains(t, last.Err.Error(), "RP2040")
}

func TestSelectVersion(t *testing.T) {
	available := []catalog.ArtifactInfo{
		{Version: "1.5.0"},
		{Version: "1.4.0"},
	}

	info, err := SelectVersion("1.4.0")(available)
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", info.Version)

	_, err = SelectVersion("9.9.9")(available)
	require.ErrorIs(t, err, catalog.ErrArtifactUnavailable)
}

func TestSelectLatestEmpty(t *testing.T) {
	_, err := SelectLatest()(nil)
	require.ErrorIs(t, err, catalog.ErrArtifactUnavailable)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateFlashed.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateTransferring.Terminal())
	assert.False(t, StateDiscovered.Terminal())
}

// stubFinder delegates to per-test functions; unset functions fail loudly.
type stubFinder struct {
	list       func(ctx context.Context) ([]discovery.Device, error)
	waitBoot   func() (discovery.Device, error)
	waitApp    func() (discovery.Device, error)
	waitDetach func() error
	probe      func(dev discovery.Device) (discovery.Mode, error)
	open       func(dev discovery.Device) (io.ReadWriteCloser, error)
}

func (f *stubFinder) ListCandidates(ctx context.Context) ([]discovery.Device, error) {
	return f.list(ctx)
}

func (f *stubFinder) WaitForBootloader(ctx context.Context, timeout time.Duration) (discovery.Device, error) {
	if f.waitBoot == nil {
		return discovery.Device{}, errors.New("unexpected WaitForBootloader")
	}
	return f.waitBoot()
}

func (f *stubFinder) WaitForApplication(ctx context.Context, timeout time.Duration) (discovery.Device, error) {
	if f.waitApp == nil {
		return discovery.Device{}, errors.New("unexpected WaitForApplication")
	}
	return f.waitApp()
}

func (f *stubFinder) WaitForDetach(ctx context.Context, port string, timeout time.Duration) error {
	if f.waitDetach == nil {
		return errors.New("unexpected WaitForDetach")
	}
	return f.waitDetach()
}

func (f *stubFinder) Probe(ctx context.Context, dev discovery.Device) (discovery.Mode, error) {
	if f.probe == nil {
		return dev.Mode, nil
	}
	return f.probe(dev)
}

func (f *stubFinder) OpenPort(dev discovery.Device) (io.ReadWriteCloser, error) {
	if f.open == nil {
		return nil, errors.New("unexpected OpenPort")
	}
	return f.open(dev)
}
