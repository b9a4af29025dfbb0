package flash

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warped-pinball/trenchcoat/discovery"
	"github.com/warped-pinball/trenchcoat/uf2"
)

// imageFileName is the name the firmware image is written under on the
// bootloader volume. The bootloader flashes any UF2 file dropped into its
// root; the name is irrelevant to the device but kept stable for operators.
const imageFileName = "firmware.uf2"

// BlockTarget accepts block-structured firmware writes from a session in
// bootloader mode. Each WriteBlock must complete fully before the next
// block is sent; Commit confirms the full image reached the device side.
type BlockTarget interface {
	WriteBlock(ctx context.Context, block *uf2.Block) error
	Commit(ctx context.Context) error
	Close() error
}

// TargetOpener opens a BlockTarget for a bootloader-mode device.
type TargetOpener func(dev discovery.Device) (BlockTarget, error)

// VolumeTarget writes UF2 blocks to the RPI-RP2 mass-storage volume the
// bootloader exposes. It implements BlockTarget.
type VolumeTarget struct {
	path string
	f    *os.File
}

// NewVolumeTarget creates the image file on the given bootloader volume.
func NewVolumeTarget(volume string) (*VolumeTarget, error) {
	path := filepath.Join(volume, imageFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open bootloader volume image: %w", err)
	}
	return &VolumeTarget{path: path, f: f}, nil
}

// WriteBlock writes one raw 512-byte block. A short write is an error:
// the bootloader consumes whole blocks only.
func (t *VolumeTarget) WriteBlock(ctx context.Context, block *uf2.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := t.f.Write(block.Raw)
	if err != nil {
		return err
	}
	if n != len(block.Raw) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(block.Raw))
	}
	return nil
}

// Commit flushes the image to the volume so the bootloader starts applying
// it, then releases the file handle.
func (t *VolumeTarget) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.f.Sync(); err != nil {
		return fmt.Errorf("sync bootloader volume: %w", err)
	}
	return t.Close()
}

// Close releases the file handle. Safe to call more than once.
func (t *VolumeTarget) Close() error {
	if t.f == nil {
		return nil
	}
	f := t.f
	t.f = nil
	return f.Close()
}

// openVolumeTarget is the default TargetOpener.
func openVolumeTarget(dev discovery.Device) (BlockTarget, error) {
	if dev.Mode != discovery.ModeBootloader {
		return nil, fmt.Errorf("device %s is not in bootloader mode", dev.Port)
	}
	return NewVolumeTarget(dev.Port)
}
