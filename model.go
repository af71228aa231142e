// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

// A Segment is one loadable region: an ELF program header, a Mach-O
// segment command, or synthesized from section placement on formats
// without segments.
type Segment struct {
	Name   string // Mach-O only; empty elsewhere
	Addr   uint64
	Size   uint64 // size in memory
	Offset uint64 // file offset
	Filesz uint64 // size in the file
	Flags  uint32 // format-specific permission bits
}

// SectionKind classifies a section's role, normalized across formats.
type SectionKind uint8

const (
	SectionOther SectionKind = iota
	SectionText
	SectionData
	SectionROData
	SectionBSS
	SectionDebug
)

func (k SectionKind) String() string {
	switch k {
	case SectionText:
		return "text"
	case SectionData:
		return "data"
	case SectionROData:
		return "rodata"
	case SectionBSS:
		return "bss"
	case SectionDebug:
		return "debug"
	}
	return "other"
}

// A Section is the unified view of one section.
type Section struct {
	Index   SectionIndex
	Name    string
	Segment string // Mach-O segment name; empty elsewhere
	Addr    uint64
	Size    uint64 // logical (uncompressed) size where known
	Align   uint64 // bytes, not log2
	Kind    SectionKind
	Flags   uint64 // raw format flags
}

// Binding is a symbol's linkage visibility.
type Binding uint8

const (
	BindLocal Binding = iota
	BindGlobal
	BindWeak
)

func (b Binding) String() string {
	switch b {
	case BindGlobal:
		return "global"
	case BindWeak:
		return "weak"
	}
	return "local"
}

// SymbolKind classifies what a symbol labels.
type SymbolKind uint8

const (
	SymOther SymbolKind = iota
	SymFunc
	SymData
	SymSection
	SymFile
	SymCommon
)

// A Symbol is the unified view of one symbol-table entry. Section is
// a real section index or one of the reserved sentinels; Index is the
// raw table index relocations use.
type Symbol struct {
	Index   SymbolIndex
	Name    string
	Value   uint64
	Size    uint64
	Section SectionIndex
	Kind    SymbolKind
	Binding Binding
	Debug   bool // debugging entry (stab, COFF/XCOFF debug classes)
}

// IsUndefined reports whether the symbol has no defining section.
func (s Symbol) IsUndefined() bool { return s.Section == SectionUndefined }

// IsAbsolute reports whether the symbol's value is an absolute
// address rather than section-relative.
func (s Symbol) IsAbsolute() bool { return s.Section == SectionAbsolute }

// IsCommon reports whether the symbol labels an unallocated common
// block.
func (s Symbol) IsCommon() bool { return s.Section == SectionCommon }

// A Reloc is the unified view of one relocation entry. Type is the
// raw architecture- and format-specific relocation kind. For Mach-O
// entries with Extern clear, Symbol holds a 1-based section ordinal
// instead of a symbol index.
type Reloc struct {
	Offset    uint64
	Symbol    SymbolIndex
	Type      uint32
	Addend    int64
	HasAddend bool
	PCRel     bool
	Size      uint8 // log2 of the relocated field width, where encoded
	Extern    bool  // Mach-O only; true elsewhere
}

// A ComdatGroup is one deduplicable section group: an ELF SHT_GROUP
// with GRP_COMDAT, or a COFF IMAGE_SCN_LNK_COMDAT section with its
// selection policy.
type ComdatGroup struct {
	Signature string
	Selection uint32 // format-specific policy (ELF group flags, COFF selection)
	Sections  []SectionIndex
}
