// Package uf2 provides parsing and validation for UF2 firmware images.
//
// # UF2 File Format
//
// A UF2 file is a sequence of fixed-size 512-byte blocks. Each block carries
// its own magic markers, a flash target address, a payload of up to 476 bytes
// (256 bytes in practice for RP2040 images), and its position within the
// image:
//
//	Offset  Size  Field
//	0       4     MagicStart0 (0x0A324655, "UF2\n")
//	4       4     MagicStart1 (0x9E5D5157)
//	8       4     Flags
//	12      4     TargetAddr
//	16      4     PayloadSize
//	20      4     BlockNo
//	24      4     NumBlocks
//	28      4     FamilyID (when FlagFamilyIDPresent is set)
//	32      476   Data (payload, zero padded)
//	508     4     MagicEnd (0x0AB16F30)
//
// Warped Pinball boards are RP2040 based, so valid firmware images carry the
// RP2040 family ID (0xE48BFF56).
//
// # Usage
//
// Parse a .uf2 file from disk:
//
//	fw, err := uf2.Parse("vector.uf2")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Blocks: %d\n", len(fw.Blocks))
//	fmt.Printf("Family: 0x%08X\n", fw.FamilyID)
//
// Parse bytes already in memory (for example a payload fetched from a
// release):
//
//	fw, err := uf2.ParseBytes(payload)
//
// Each parsed Block keeps a reference to its raw 512-byte wire form, so the
// exact bytes that were validated are the exact bytes written to the device.
//
// # Error Handling
//
// Parse returns detailed errors for invalid images:
//   - Images whose size is not a multiple of the block size
//   - Invalid block magics
//   - Payload sizes out of range
//   - Gaps or disagreements in block numbering
//   - Family ID mismatches between blocks
//
// All errors include the index of the offending block.
package uf2
