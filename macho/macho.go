// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package macho reads Mach-O object files, executables, and dynamic
// libraries from in-memory byte buffers, including fat (universal)
// binaries. Both 32- and 64-bit files and both byte orders are
// supported. Parsing is structural and never reads outside the
// supplied buffer.
//
// Constant names follow <mach-o/loader.h>.
package macho

import "fmt"

// Single-architecture magic numbers, as stored little-endian.
const (
	MagicMachO32 uint32 = 0xfeedface
	MagicMachO64 uint32 = 0xfeedfacf
	MagicFat     uint32 = 0xcafebabe
)

// FileType is the Mach-O file type (mh_filetype).
type FileType uint32

const (
	TypeObj    FileType = 1
	TypeExec   FileType = 2
	TypeDylib  FileType = 6
	TypeBundle FileType = 8
	TypeDsym   FileType = 10
)

func (t FileType) String() string {
	switch t {
	case TypeObj:
		return "MH_OBJECT"
	case TypeExec:
		return "MH_EXECUTE"
	case TypeDylib:
		return "MH_DYLIB"
	case TypeBundle:
		return "MH_BUNDLE"
	case TypeDsym:
		return "MH_DSYM"
	}
	return fmt.Sprintf("FileType(%d)", uint32(t))
}

// CPU is the Mach-O CPU type (cputype).
type CPU uint32

const (
	cpuArch64 uint32 = 0x01000000

	CPU386   CPU = 7
	CPUAmd64 CPU = CPU(7 | cpuArch64)
	CPUArm   CPU = 12
	CPUArm64 CPU = CPU(12 | cpuArch64)
	CPUPpc   CPU = 18
	CPUPpc64 CPU = CPU(18 | cpuArch64)
)

func (c CPU) String() string {
	switch c {
	case CPU386:
		return "CPU_TYPE_X86"
	case CPUAmd64:
		return "CPU_TYPE_X86_64"
	case CPUArm:
		return "CPU_TYPE_ARM"
	case CPUArm64:
		return "CPU_TYPE_ARM64"
	case CPUPpc:
		return "CPU_TYPE_POWERPC"
	case CPUPpc64:
		return "CPU_TYPE_POWERPC64"
	}
	return fmt.Sprintf("CPU(%d)", uint32(c))
}

// LoadCmd is a load command type.
type LoadCmd uint32

const (
	LcSegment    LoadCmd = 0x1
	LcSymtab     LoadCmd = 0x2
	LcUnixthread LoadCmd = 0x5
	LcDysymtab   LoadCmd = 0xb
	LcSegment64  LoadCmd = 0x19
	LcMain       LoadCmd = 0x80000028
)

// Symbol type bits (n_type).
const (
	NStab uint8 = 0xe0
	NPext uint8 = 0x10
	NType uint8 = 0x0e
	NExt  uint8 = 0x01

	// n_type & NType values.
	NUndf uint8 = 0x0
	NAbs  uint8 = 0x2
	NSect uint8 = 0xe
	NPbud uint8 = 0xc
	NIndr uint8 = 0xa

	// n_sect value meaning "no section".
	NoSect = 0
)

// Section type (flags & SectionTypeMask).
const (
	SectionTypeMask uint32 = 0x000000ff

	SRegular         uint32 = 0x0
	SZerofill        uint32 = 0x1
	SCstringLiterals uint32 = 0x2

	SAttrPureInstructions uint32 = 0x80000000
	SAttrSomeInstructions uint32 = 0x00000400
)

// Scattered relocation flag in r_address.
const rScattered uint32 = 0x80000000

// Fixed structure sizes, in bytes.
const (
	hdrSize32     = 28
	hdrSize64     = 32
	segCmdSize32  = 56
	segCmdSize64  = 72
	sectSize32    = 68
	sectSize64    = 80
	nlistSize32   = 12
	nlistSize64   = 16
	symtabCmdSize = 24
	relocInfoSize = 8
)
