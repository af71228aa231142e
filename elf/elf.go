// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elf reads ELF object files, executables, and shared objects
// from in-memory byte buffers. Both the 32- and 64-bit classes and
// both byte orders are supported. Parsing is structural and safe on
// malformed input: every access is bounds checked and errors out
// instead of panicking.
//
// Constant names and values follow the System V gABI.
package elf

import "fmt"

// Magic is the four identification bytes at the start of every ELF file.
var Magic = [4]byte{0x7f, 'E', 'L', 'F'}

// Indexes into the e_ident identification bytes.
const (
	EI_CLASS      = 4
	EI_DATA       = 5
	EI_VERSION    = 6
	EI_OSABI      = 7
	EI_ABIVERSION = 8
	EI_NIDENT     = 16
)

// Class is the file's address width (e_ident[EI_CLASS]).
type Class uint8

const (
	ELFCLASSNONE Class = 0
	ELFCLASS32   Class = 1
	ELFCLASS64   Class = 2
)

func (c Class) String() string {
	switch c {
	case ELFCLASS32:
		return "ELF32"
	case ELFCLASS64:
		return "ELF64"
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Data is the file's byte order (e_ident[EI_DATA]).
type Data uint8

const (
	ELFDATANONE Data = 0
	ELFDATA2LSB Data = 1
	ELFDATA2MSB Data = 2
)

// Type is the object file type (e_type).
type Type uint16

const (
	ET_NONE Type = 0
	ET_REL  Type = 1
	ET_EXEC Type = 2
	ET_DYN  Type = 3
	ET_CORE Type = 4
)

func (t Type) String() string {
	switch t {
	case ET_NONE:
		return "ET_NONE"
	case ET_REL:
		return "ET_REL"
	case ET_EXEC:
		return "ET_EXEC"
	case ET_DYN:
		return "ET_DYN"
	case ET_CORE:
		return "ET_CORE"
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// Machine is the target architecture (e_machine).
type Machine uint16

const (
	EM_NONE    Machine = 0
	EM_386     Machine = 3
	EM_MIPS    Machine = 8
	EM_PPC     Machine = 20
	EM_PPC64   Machine = 21
	EM_S390    Machine = 22
	EM_ARM     Machine = 40
	EM_X86_64  Machine = 62
	EM_AARCH64 Machine = 183
	EM_RISCV   Machine = 243
	EM_LOONG   Machine = 258
)

// SectionType is a section header's sh_type.
type SectionType uint32

const (
	SHT_NULL          SectionType = 0
	SHT_PROGBITS      SectionType = 1
	SHT_SYMTAB        SectionType = 2
	SHT_STRTAB        SectionType = 3
	SHT_RELA          SectionType = 4
	SHT_HASH          SectionType = 5
	SHT_DYNAMIC       SectionType = 6
	SHT_NOTE          SectionType = 7
	SHT_NOBITS        SectionType = 8
	SHT_REL           SectionType = 9
	SHT_SHLIB         SectionType = 10
	SHT_DYNSYM        SectionType = 11
	SHT_INIT_ARRAY    SectionType = 14
	SHT_FINI_ARRAY    SectionType = 15
	SHT_PREINIT_ARRAY SectionType = 16
	SHT_GROUP         SectionType = 17
	SHT_SYMTAB_SHNDX  SectionType = 18
)

// Section header flags (sh_flags).
const (
	SHF_WRITE      uint64 = 0x1
	SHF_ALLOC      uint64 = 0x2
	SHF_EXECINSTR  uint64 = 0x4
	SHF_MERGE      uint64 = 0x10
	SHF_STRINGS    uint64 = 0x20
	SHF_INFO_LINK  uint64 = 0x40
	SHF_LINK_ORDER uint64 = 0x80
	SHF_GROUP      uint64 = 0x200
	SHF_TLS        uint64 = 0x400
	SHF_COMPRESSED uint64 = 0x800
)

// Reserved section header indices (st_shndx sentinels).
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xff00
	SHN_ABS       = 0xfff1
	SHN_COMMON    = 0xfff2
	SHN_XINDEX    = 0xffff
)

// SymBind is the binding half of a symbol's st_info.
type SymBind uint8

const (
	STB_LOCAL  SymBind = 0
	STB_GLOBAL SymBind = 1
	STB_WEAK   SymBind = 2
)

func (b SymBind) String() string {
	switch b {
	case STB_LOCAL:
		return "STB_LOCAL"
	case STB_GLOBAL:
		return "STB_GLOBAL"
	case STB_WEAK:
		return "STB_WEAK"
	}
	return fmt.Sprintf("SymBind(%d)", uint8(b))
}

// SymType is the type half of a symbol's st_info.
type SymType uint8

const (
	STT_NOTYPE  SymType = 0
	STT_OBJECT  SymType = 1
	STT_FUNC    SymType = 2
	STT_SECTION SymType = 3
	STT_FILE    SymType = 4
	STT_COMMON  SymType = 5
	STT_TLS     SymType = 6
)

func (t SymType) String() string {
	switch t {
	case STT_NOTYPE:
		return "STT_NOTYPE"
	case STT_OBJECT:
		return "STT_OBJECT"
	case STT_FUNC:
		return "STT_FUNC"
	case STT_SECTION:
		return "STT_SECTION"
	case STT_FILE:
		return "STT_FILE"
	case STT_COMMON:
		return "STT_COMMON"
	case STT_TLS:
		return "STT_TLS"
	}
	return fmt.Sprintf("SymType(%d)", uint8(t))
}

// ProgType is a program header's p_type.
type ProgType uint32

const (
	PT_NULL    ProgType = 0
	PT_LOAD    ProgType = 1
	PT_DYNAMIC ProgType = 2
	PT_INTERP  ProgType = 3
	PT_NOTE    ProgType = 4
	PT_SHLIB   ProgType = 5
	PT_PHDR    ProgType = 6
	PT_TLS     ProgType = 7
)

// Program header flags (p_flags).
const (
	PF_X uint32 = 0x1
	PF_W uint32 = 0x2
	PF_R uint32 = 0x4
)

// Section compression types (ch_type).
const (
	COMPRESS_ZLIB uint32 = 1
	COMPRESS_ZSTD uint32 = 2
)

// Section group flags.
const (
	GRP_COMDAT uint32 = 1
)

// Fixed structure sizes per class, in bytes.
const (
	ehdrSize32 = 52
	ehdrSize64 = 64
	shdrSize32 = 40
	shdrSize64 = 64
	phdrSize32 = 32
	phdrSize64 = 56
	symSize32  = 16
	symSize64  = 24
	chdrSize32 = 12
	chdrSize64 = 24
)
