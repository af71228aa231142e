// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcoff reads 32-bit and 64-bit XCOFF objects, the AIX object
// file format, from in-memory byte buffers. XCOFF is always big-endian.
package xcoff

import "fmt"

// File header magic values.
const (
	Magic32 uint16 = 0x01DF
	Magic64 uint16 = 0x01F7
)

// Section type flags, the low bits of a section header's s_flags.
const (
	STYP_PAD    uint32 = 0x0008
	STYP_DWARF  uint32 = 0x0010
	STYP_TEXT   uint32 = 0x0020
	STYP_DATA   uint32 = 0x0040
	STYP_BSS    uint32 = 0x0080
	STYP_EXCEPT uint32 = 0x0100
	STYP_INFO   uint32 = 0x0200
	STYP_LOADER uint32 = 0x1000
	STYP_DEBUG  uint32 = 0x2000
	STYP_TYPCHK uint32 = 0x4000
	STYP_OVRFLO uint32 = 0x8000
)

// Symbol section-number sentinels.
const (
	N_UNDEF int16 = 0
	N_ABS   int16 = -1
	N_DEBUG int16 = -2
)

// Storage classes.
const (
	C_EXT     uint8 = 2
	C_STAT    uint8 = 3
	C_FCN     uint8 = 101
	C_FILE    uint8 = 103
	C_HIDEXT  uint8 = 107
	C_BINCL   uint8 = 108
	C_EINCL   uint8 = 109
	C_WEAKEXT uint8 = 111
	C_DWARF   uint8 = 112
)

// Csect symbol types, the low 3 bits of a csect aux record's x_smtyp.
// The remaining bits hold the log2 alignment.
const (
	XTY_ER uint8 = 0 // external reference
	XTY_SD uint8 = 1 // csect definition
	XTY_LD uint8 = 2 // label within a csect
	XTY_CM uint8 = 3 // common block
)

// Storage mapping classes from a csect aux record.
const (
	XMC_PR  uint8 = 0  // program code
	XMC_RO  uint8 = 1  // read-only constants
	XMC_DB  uint8 = 2  // debug dictionary
	XMC_TC  uint8 = 3  // TOC entry
	XMC_RW  uint8 = 5  // read/write data
	XMC_GL  uint8 = 6  // global linkage
	XMC_XO  uint8 = 7  // extended operation
	XMC_BS  uint8 = 9  // BSS
	XMC_DS  uint8 = 10 // function descriptor
	XMC_TC0 uint8 = 15 // TOC anchor
)

// Relocation types.
const (
	R_POS uint8 = 0x00 // positive virtual address
	R_NEG uint8 = 0x01
	R_REL uint8 = 0x02 // relative to self
	R_TOC uint8 = 0x03 // relative to TOC
	R_RBR uint8 = 0x1a // branch relative, can be modified
	R_REF uint8 = 0x0f // non-relocating reference
)

// 64-bit aux records carry a type discriminator in their last byte.
const auxCsect64 = 251

// Fixed structure sizes, in bytes.
const (
	fileHeaderSize32 = 20
	fileHeaderSize64 = 24
	sectHeaderSize32 = 40
	sectHeaderSize64 = 72
	symbolSize       = 18
	relocSize32      = 10
	relocSize64      = 14

	auxEntry32Off = 16 // o_entry in a 32-bit aux header
	auxEntry64Off = 76
)

// StorageClassString names the given storage class.
func StorageClassString(c uint8) string {
	switch c {
	case C_EXT:
		return "C_EXT"
	case C_STAT:
		return "C_STAT"
	case C_FCN:
		return "C_FCN"
	case C_FILE:
		return "C_FILE"
	case C_HIDEXT:
		return "C_HIDEXT"
	case C_WEAKEXT:
		return "C_WEAKEXT"
	case C_DWARF:
		return "C_DWARF"
	}
	return fmt.Sprintf("StorageClass(%d)", c)
}
