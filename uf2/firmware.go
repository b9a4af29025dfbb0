package uf2

// Firmware represents a complete parsed UF2 firmware image.
type Firmware struct {
	// FamilyID is the target chip family shared by all blocks,
	// or zero if the image does not declare one.
	FamilyID uint32

	// Blocks contains all flash blocks in image order
	Blocks []*Block
}

// TotalPayload returns the number of payload bytes across all blocks.
func (f *Firmware) TotalPayload() int {
	total := 0
	for _, b := range f.Blocks {
		total += len(b.Data)
	}
	return total
}

// TargetsFamily reports whether the image declares the given chip family.
func (f *Firmware) TargetsFamily(familyID uint32) bool {
	return f.FamilyID == familyID
}

// Block represents a single 512-byte UF2 block.
type Block struct {
	// Flags is the block flags field (see Flag* constants)
	Flags uint32

	// TargetAddr is the flash address the payload is written to
	TargetAddr uint32

	// BlockNo is the zero-based position of this block in the image
	BlockNo uint32

	// NumBlocks is the total number of blocks in the image
	NumBlocks uint32

	// FamilyID is the target chip family (valid when FlagFamilyIDPresent is set)
	FamilyID uint32

	// Data is the block payload (PayloadSize bytes, padding stripped)
	Data []byte

	// Raw is the complete 512-byte wire form of the block as it appeared
	// in the image. Transfers write Raw so the device receives exactly the
	// bytes that were parsed and verified.
	Raw []byte
}
