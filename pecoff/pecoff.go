// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pecoff reads PE32/PE32+ images and COFF relocatable objects
// from in-memory byte buffers. Parsing is structural and never reads
// outside the supplied buffer.
//
// Constant names follow the PE/COFF specification.
package pecoff

import "fmt"

// Machine is the COFF machine type.
type Machine uint16

const (
	IMAGE_FILE_MACHINE_UNKNOWN Machine = 0x0
	IMAGE_FILE_MACHINE_I386    Machine = 0x14c
	IMAGE_FILE_MACHINE_ARM     Machine = 0x1c0
	IMAGE_FILE_MACHINE_ARMNT   Machine = 0x1c4
	IMAGE_FILE_MACHINE_AMD64   Machine = 0x8664
	IMAGE_FILE_MACHINE_ARM64   Machine = 0xaa64
	IMAGE_FILE_MACHINE_RISCV64 Machine = 0x5064
)

func (m Machine) String() string {
	switch m {
	case IMAGE_FILE_MACHINE_I386:
		return "IMAGE_FILE_MACHINE_I386"
	case IMAGE_FILE_MACHINE_ARM:
		return "IMAGE_FILE_MACHINE_ARM"
	case IMAGE_FILE_MACHINE_ARMNT:
		return "IMAGE_FILE_MACHINE_ARMNT"
	case IMAGE_FILE_MACHINE_AMD64:
		return "IMAGE_FILE_MACHINE_AMD64"
	case IMAGE_FILE_MACHINE_ARM64:
		return "IMAGE_FILE_MACHINE_ARM64"
	case IMAGE_FILE_MACHINE_RISCV64:
		return "IMAGE_FILE_MACHINE_RISCV64"
	}
	return fmt.Sprintf("Machine(%#x)", uint16(m))
}

// Optional header magic values.
const (
	OptionalHeaderMagicPE32     = 0x10b
	OptionalHeaderMagicPE32Plus = 0x20b
)

// Section characteristics.
const (
	IMAGE_SCN_CNT_CODE               uint32 = 0x00000020
	IMAGE_SCN_CNT_INITIALIZED_DATA   uint32 = 0x00000040
	IMAGE_SCN_CNT_UNINITIALIZED_DATA uint32 = 0x00000080
	IMAGE_SCN_LNK_COMDAT             uint32 = 0x00001000
	IMAGE_SCN_LNK_NRELOC_OVFL        uint32 = 0x01000000
	IMAGE_SCN_MEM_DISCARDABLE        uint32 = 0x02000000
	IMAGE_SCN_MEM_EXECUTE            uint32 = 0x20000000
	IMAGE_SCN_MEM_READ               uint32 = 0x40000000
	IMAGE_SCN_MEM_WRITE              uint32 = 0x80000000
)

// Symbol section-number sentinels.
const (
	IMAGE_SYM_UNDEFINED int16 = 0
	IMAGE_SYM_ABSOLUTE  int16 = -1
	IMAGE_SYM_DEBUG     int16 = -2
)

// Storage classes.
const (
	IMAGE_SYM_CLASS_EXTERNAL uint8 = 2
	IMAGE_SYM_CLASS_STATIC   uint8 = 3
	IMAGE_SYM_CLASS_LABEL    uint8 = 6
	IMAGE_SYM_CLASS_FUNCTION uint8 = 101
	IMAGE_SYM_CLASS_FILE     uint8 = 103
	IMAGE_SYM_CLASS_SECTION  uint8 = 104
)

// COMDAT selection values from a section-definition aux record.
const (
	IMAGE_COMDAT_SELECT_NODUPLICATES uint8 = 1
	IMAGE_COMDAT_SELECT_ANY          uint8 = 2
	IMAGE_COMDAT_SELECT_SAME_SIZE    uint8 = 3
	IMAGE_COMDAT_SELECT_EXACT_MATCH  uint8 = 4
	IMAGE_COMDAT_SELECT_ASSOCIATIVE  uint8 = 5
	IMAGE_COMDAT_SELECT_LARGEST      uint8 = 6
)

// Fixed structure sizes, in bytes.
const (
	coffHeaderSize    = 20
	sectionHeaderSize = 40
	symbolSize        = 18
	relocSize         = 10
)
