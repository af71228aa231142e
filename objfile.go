// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package objfile provides a unified read interface over the compiled
// object formats: ELF, Mach-O, PE/COFF, and XCOFF, in their 32- and
// 64-bit variants, plus ar archives and fat Mach-O binaries.
//
// Open sniffs the format from magic bytes and returns an *Any, a
// tagged union over the format-specific parsers in the subpackages.
// All parsing is from in-memory byte buffers, zero-copy where the
// format allows, and structural: malformed input produces errors,
// never panics or reads outside the buffer.
package objfile

import (
	"fmt"

	"github.com/aclements/go-objfile/pod"
)

// Format identifies one concrete object file layout.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatELF32
	FormatELF64
	FormatMachO32
	FormatMachO64
	FormatPE32
	FormatPE32Plus
	FormatCOFF
	FormatXCOFF32
	FormatXCOFF64
)

func (f Format) String() string {
	switch f {
	case FormatELF32:
		return "ELF32"
	case FormatELF64:
		return "ELF64"
	case FormatMachO32:
		return "Mach-O 32-bit"
	case FormatMachO64:
		return "Mach-O 64-bit"
	case FormatPE32:
		return "PE32"
	case FormatPE32Plus:
		return "PE32+"
	case FormatCOFF:
		return "COFF"
	case FormatXCOFF32:
		return "XCOFF32"
	case FormatXCOFF64:
		return "XCOFF64"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// Is64 reports whether the format uses 64-bit file structures.
func (f Format) Is64() bool {
	switch f {
	case FormatELF64, FormatMachO64, FormatPE32Plus, FormatXCOFF64:
		return true
	}
	return false
}

// Machine identifies a target architecture, normalized across the
// per-format encodings (e_machine, cputype, COFF machine, XCOFF).
type Machine uint8

const (
	MachineUnknown Machine = iota
	MachineI386
	MachineX86_64
	MachineArm
	MachineArm64
	MachinePpc
	MachinePpc64
	MachineRiscv64
	MachineMips
	MachineS390
	MachineLoong64
)

func (m Machine) String() string {
	switch m {
	case MachineI386:
		return "i386"
	case MachineX86_64:
		return "x86-64"
	case MachineArm:
		return "arm"
	case MachineArm64:
		return "arm64"
	case MachinePpc:
		return "ppc"
	case MachinePpc64:
		return "ppc64"
	case MachineRiscv64:
		return "riscv64"
	case MachineMips:
		return "mips"
	case MachineS390:
		return "s390x"
	case MachineLoong64:
		return "loong64"
	}
	return fmt.Sprintf("Machine(%d)", uint8(m))
}

// File is the capability contract shared by every parsed object,
// implemented by *Any. Section and symbol indices follow each
// format's native numbering: ELF sections are 0-based table indices
// (index 0 is the reserved null section); Mach-O, COFF, and XCOFF
// sections are 1-based ordinals. Symbol indices are raw symbol-table
// indices, the form relocations reference.
type File interface {
	Format() Format
	Machine() Machine
	Endian() pod.Endian
	Is64() bool
	Entry() (uint64, bool)

	Segments() ([]Segment, error)
	NumSections() int
	Section(i SectionIndex) (Section, error)
	SectionByName(name string) (Section, bool)
	SectionData(i SectionIndex) ([]byte, error)

	Symbols() ([]Symbol, error)
	Symbol(i SymbolIndex) (Symbol, error)
	Relocations(i SectionIndex) ([]Reloc, error)
	ComdatGroups() ([]ComdatGroup, error)
}
