package uf2

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Constants for the UF2 block format.
const (
	// BlockSize is the fixed size of every UF2 block in bytes
	BlockSize = 512

	// MaxPayloadSize is the maximum payload size per block
	MaxPayloadSize = 476

	// MagicStart0 is the first block magic ("UF2\n")
	MagicStart0 = 0x0A324655

	// MagicStart1 is the second block magic
	MagicStart1 = 0x9E5D5157

	// MagicEnd is the final block magic
	MagicEnd = 0x0AB16F30

	// FlagNotMainFlash marks blocks that must not be written to flash
	FlagNotMainFlash = 0x00000001

	// FlagFamilyIDPresent indicates the FamilyID field is valid
	FlagFamilyIDPresent = 0x00002000

	// FamilyRP2040 is the chip family ID for RP2040 boards
	FamilyRP2040 = 0xE48BFF56

	// payloadOffset is the byte offset of the payload within a block
	payloadOffset = 32
)

// Parse parses a .uf2 file from the given file path.
// Returns the complete firmware structure or an error if parsing fails.
//
// Example:
//
//	fw, err := uf2.Parse("vector.uf2")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Blocks: %d\n", len(fw.Blocks))
func Parse(path string) (*Firmware, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader parses a UF2 image from any io.Reader.
// This is useful for testing and reading from non-file sources.
func ParseReader(r io.Reader) (*Firmware, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	return ParseBytes(data)
}

// ParseBytes parses a UF2 image held in memory.
//
// The returned blocks reference the input slice; callers must not mutate
// the image bytes after parsing.
func ParseBytes(data []byte) (*Firmware, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("image size %d is not a multiple of the block size %d", len(data), BlockSize)
	}

	count := len(data) / BlockSize
	fw := &Firmware{
		Blocks: make([]*Block, 0, count),
	}

	for i := 0; i < count; i++ {
		raw := data[i*BlockSize : (i+1)*BlockSize]
		block, err := parseBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}

		if block.NumBlocks != uint32(count) {
			return nil, fmt.Errorf("block %d: block count mismatch: block declares %d, image has %d",
				i, block.NumBlocks, count)
		}
		if block.BlockNo != uint32(i) {
			return nil, fmt.Errorf("block %d: block number mismatch: got %d", i, block.BlockNo)
		}

		if block.Flags&FlagFamilyIDPresent != 0 {
			if fw.FamilyID == 0 {
				fw.FamilyID = block.FamilyID
			} else if fw.FamilyID != block.FamilyID {
				return nil, fmt.Errorf("block %d: family ID mismatch: got 0x%08X, image uses 0x%08X",
					i, block.FamilyID, fw.FamilyID)
			}
		}

		fw.Blocks = append(fw.Blocks, block)
	}

	return fw, nil
}

// parseBlock parses and validates a single 512-byte block.
func parseBlock(raw []byte) (*Block, error) {
	if len(raw) != BlockSize {
		return nil, fmt.Errorf("invalid block size: got %d bytes, expected %d", len(raw), BlockSize)
	}

	if magic := binary.LittleEndian.Uint32(raw[0:4]); magic != MagicStart0 {
		return nil, fmt.Errorf("invalid first magic: got 0x%08X, expected 0x%08X", magic, MagicStart0)
	}
	if magic := binary.LittleEndian.Uint32(raw[4:8]); magic != MagicStart1 {
		return nil, fmt.Errorf("invalid second magic: got 0x%08X, expected 0x%08X", magic, MagicStart1)
	}
	if magic := binary.LittleEndian.Uint32(raw[BlockSize-4:]); magic != MagicEnd {
		return nil, fmt.Errorf("invalid end magic: got 0x%08X, expected 0x%08X", magic, MagicEnd)
	}

	payloadSize := binary.LittleEndian.Uint32(raw[16:20])
	if payloadSize == 0 || payloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("invalid payload size: got %d, valid range is 1-%d", payloadSize, MaxPayloadSize)
	}

	block := &Block{
		Flags:      binary.LittleEndian.Uint32(raw[8:12]),
		TargetAddr: binary.LittleEndian.Uint32(raw[12:16]),
		BlockNo:    binary.LittleEndian.Uint32(raw[20:24]),
		NumBlocks:  binary.LittleEndian.Uint32(raw[24:28]),
		FamilyID:   binary.LittleEndian.Uint32(raw[28:32]),
		Data:       raw[payloadOffset : payloadOffset+payloadSize],
		Raw:        raw,
	}

	return block, nil
}
