// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import (
	"errors"
	"fmt"

	"github.com/aclements/go-objfile/ar"
	"github.com/aclements/go-objfile/elf"
	"github.com/aclements/go-objfile/macho"
	"github.com/aclements/go-objfile/pecoff"
	"github.com/aclements/go-objfile/pod"
	"github.com/aclements/go-objfile/xcoff"
)

// ErrNotObject reports that no enabled format recognized the buffer.
// Parse errors from a recognized format are returned as themselves,
// so callers can distinguish "not this format" from "this format,
// but broken".
var ErrNotObject = errors.New("unrecognized object file format")

// ErrFatFile reports a fat (universal) Mach-O binary, which holds
// several objects; use OpenFat to get at its members.
var ErrFatFile = errors.New("fat Mach-O binary, use OpenFat")

// ErrArchive reports an ar archive, which holds several objects; use
// OpenArchive to get at its members.
var ErrArchive = errors.New("ar archive, use OpenArchive")

// Options controls parsing.
type Options struct {
	// Unaligned permits reading multi-byte fields at misaligned
	// offsets, for buffers that are not slices of a mapped file.
	Unaligned bool

	// Formats restricts sniffing to the listed formats. Nil means
	// all formats.
	Formats []Format
}

func (o *Options) mode() pod.Mode {
	if o.Unaligned {
		return pod.AllowUnaligned
	}
	return 0
}

func (o *Options) wants(fs ...Format) bool {
	if o.Formats == nil {
		return true
	}
	for _, f := range fs {
		for _, g := range o.Formats {
			if f == g {
				return true
			}
		}
	}
	return false
}

// An Any is a parsed object of any supported format: a tagged union
// holding exactly one of the format-specific parsers. It implements
// File by dispatching on the format tag. The zero Any is invalid;
// use Open.
type Any struct {
	format Format

	elf   *elf.File
	macho *macho.File
	pe    *pecoff.File
	xcoff *xcoff.File
}

var _ File = (*Any)(nil)

// Open sniffs the object format from magic bytes and parses data.
// Strongly-tagged formats (ELF, Mach-O, XCOFF, PE images) are probed
// first; bare COFF objects, which have no magic, are probed last. The
// returned Any borrows data. A buffer no enabled format claims yields
// ErrNotObject; fat binaries and archives yield ErrFatFile and
// ErrArchive.
func Open(data []byte, opts *Options) (*Any, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	mode := o.mode()

	if elf.Match(data) {
		f, err := elf.NewFile(data, mode)
		if err != nil {
			return nil, err
		}
		a := &Any{elf: f, format: FormatELF32}
		if f.Is64() {
			a.format = FormatELF64
		}
		return checkWanted(a, &o)
	}
	if macho.Match(data) {
		f, err := macho.NewFile(data, mode)
		if err != nil {
			return nil, err
		}
		a := &Any{macho: f, format: FormatMachO32}
		if f.Is64() {
			a.format = FormatMachO64
		}
		return checkWanted(a, &o)
	}
	if macho.MatchFat(data) {
		return nil, ErrFatFile
	}
	if ar.Match(data) {
		return nil, ErrArchive
	}
	if xcoff.Match(data) {
		f, err := xcoff.NewFile(data, mode)
		if err != nil {
			return nil, err
		}
		a := &Any{xcoff: f, format: FormatXCOFF32}
		if f.Is64() {
			a.format = FormatXCOFF64
		}
		return checkWanted(a, &o)
	}
	if pecoff.MatchPE(data) || (o.wants(FormatCOFF) && pecoff.MatchCOFF(data)) {
		f, err := pecoff.NewFile(data, mode)
		if err != nil {
			return nil, err
		}
		a := &Any{pe: f, format: FormatCOFF}
		switch {
		case f.IsPE && f.PE32Plus:
			a.format = FormatPE32Plus
		case f.IsPE:
			a.format = FormatPE32
		}
		return checkWanted(a, &o)
	}
	return nil, ErrNotObject
}

func checkWanted(a *Any, o *Options) (*Any, error) {
	if !o.wants(a.format) {
		return nil, ErrNotObject
	}
	return a, nil
}

// Format returns the concrete layout tag.
func (a *Any) Format() Format { return a.format }

// Is64 reports whether the file uses 64-bit structures.
func (a *Any) Is64() bool { return a.format.Is64() }

// Endian returns the file's byte order.
func (a *Any) Endian() pod.Endian {
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elf.Endian
	case FormatMachO32, FormatMachO64:
		return a.macho.Endian
	case FormatXCOFF32, FormatXCOFF64:
		return pod.Big
	default:
		return pod.Little
	}
}

// Machine returns the normalized target architecture.
func (a *Any) Machine() Machine {
	switch a.format {
	case FormatELF32, FormatELF64:
		return elfMachine(a.elf.Machine)
	case FormatMachO32, FormatMachO64:
		return machoMachine(a.macho.CPU)
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return peMachine(a.pe.Machine)
	case FormatXCOFF32:
		return MachinePpc
	case FormatXCOFF64:
		return MachinePpc64
	}
	return MachineUnknown
}

// Entry returns the program entry point and whether the file declares
// one. For PE images this is an absolute address (image base plus the
// entry RVA); for Mach-O it is the LC_MAIN file offset.
func (a *Any) Entry() (uint64, bool) {
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elf.Entry, a.elf.Entry != 0
	case FormatMachO32, FormatMachO64:
		return a.macho.Entry()
	case FormatPE32, FormatPE32Plus:
		return a.pe.ImageBase + uint64(a.pe.EntryPoint), a.pe.EntryPoint != 0
	case FormatXCOFF32, FormatXCOFF64:
		return a.xcoff.Entry, a.xcoff.HasEntry
	}
	return 0, false
}

// Segments returns the file's loadable regions. Formats without
// segments return nil.
func (a *Any) Segments() ([]Segment, error) {
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elfSegments()
	case FormatMachO32, FormatMachO64:
		return a.machoSegments()
	}
	return nil, nil
}

// NumSections returns the number of section entries, in the format's
// native numbering (see File).
func (a *Any) NumSections() int {
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elf.NumSections()
	case FormatMachO32, FormatMachO64:
		return len(a.macho.Sections())
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return len(a.pe.Sections())
	case FormatXCOFF32, FormatXCOFF64:
		return len(a.xcoff.Sections())
	}
	return 0
}

// Section returns the section at index i. Reserved sentinel indices
// and out-of-range indices yield an InvalidIndexError.
func (a *Any) Section(i SectionIndex) (Section, error) {
	if i.IsReserved() {
		return Section{}, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: a.NumSections()}
	}
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elfSection(i)
	case FormatMachO32, FormatMachO64:
		return a.machoSection(i)
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return a.peSection(i)
	case FormatXCOFF32, FormatXCOFF64:
		return a.xcoffSection(i)
	}
	return Section{}, fmt.Errorf("objfile: invalid format tag %v", a.format)
}

// SectionByName returns the first section with the given name, ties
// broken by lowest index.
func (a *Any) SectionByName(name string) (Section, bool) {
	switch a.format {
	case FormatELF32, FormatELF64:
		_, i, ok := a.elf.SectionByName(name)
		if !ok {
			return Section{}, false
		}
		s, err := a.elfSection(SectionIndex(i))
		return s, err == nil
	case FormatMachO32, FormatMachO64:
		_, n, ok := a.macho.SectionByName(name)
		if !ok {
			return Section{}, false
		}
		s, err := a.machoSection(SectionIndex(n))
		return s, err == nil
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		_, n, ok := a.pe.SectionByName(name)
		if !ok {
			return Section{}, false
		}
		s, err := a.peSection(SectionIndex(n))
		return s, err == nil
	case FormatXCOFF32, FormatXCOFF64:
		_, n, ok := a.xcoff.SectionByName(name)
		if !ok {
			return Section{}, false
		}
		s, err := a.xcoffSection(SectionIndex(n))
		return s, err == nil
	}
	return Section{}, false
}

// SectionData returns section i's logical bytes: decompressed for
// compressed ELF sections, nil for sections with no file bytes (BSS,
// zerofill).
func (a *Any) SectionData(i SectionIndex) ([]byte, error) {
	if i.IsReserved() {
		return nil, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: a.NumSections()}
	}
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elf.Data(int(i))
	case FormatMachO32, FormatMachO64:
		return a.macho.Data(int(i))
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return a.pe.Data(int(i))
	case FormatXCOFF32, FormatXCOFF64:
		return a.xcoff.Data(int(i))
	}
	return nil, fmt.Errorf("objfile: invalid format tag %v", a.format)
}

// Symbols returns the unified symbol table in on-disk order,
// auxiliary records folded into their owners.
func (a *Any) Symbols() ([]Symbol, error) {
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elfSymbols()
	case FormatMachO32, FormatMachO64:
		return a.machoSymbols()
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return a.peSymbols()
	case FormatXCOFF32, FormatXCOFF64:
		return a.xcoffSymbols()
	}
	return nil, fmt.Errorf("objfile: invalid format tag %v", a.format)
}

// Symbol returns the symbol at raw table index i, the numbering
// relocations use. Indices that fall on auxiliary records or outside
// the table yield an InvalidIndexError.
func (a *Any) Symbol(i SymbolIndex) (Symbol, error) {
	syms, err := a.Symbols()
	if err != nil {
		return Symbol{}, err
	}
	switch a.format {
	case FormatPE32, FormatPE32Plus, FormatCOFF, FormatXCOFF32, FormatXCOFF64:
		// Raw indices are sparse: aux records consume slots.
		lo, hi := 0, len(syms)
		for lo < hi {
			mid := (lo + hi) / 2
			if syms[mid].Index < i {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo < len(syms) && syms[lo].Index == i {
			return syms[lo], nil
		}
	default:
		if int(i) < len(syms) {
			return syms[i], nil
		}
	}
	return Symbol{}, &InvalidIndexError{Kind: "symbol", Index: uint32(i), Num: len(syms)}
}

// Relocations returns the relocation entries applying to section i in
// on-disk order.
func (a *Any) Relocations(i SectionIndex) ([]Reloc, error) {
	if i.IsReserved() {
		return nil, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: a.NumSections()}
	}
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elfRelocations(i)
	case FormatMachO32, FormatMachO64:
		return a.machoRelocations(i)
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return a.peRelocations(i)
	case FormatXCOFF32, FormatXCOFF64:
		return a.xcoffRelocations(i)
	}
	return nil, fmt.Errorf("objfile: invalid format tag %v", a.format)
}

// ComdatGroups returns the file's deduplicable section groups.
// Formats without COMDAT return nil.
func (a *Any) ComdatGroups() ([]ComdatGroup, error) {
	switch a.format {
	case FormatELF32, FormatELF64:
		return a.elfComdatGroups()
	case FormatPE32, FormatPE32Plus, FormatCOFF:
		return a.peComdatGroups()
	}
	return nil, nil
}

// ELF returns the underlying ELF parser, or nil if the file is not
// ELF. The concrete parsers expose format detail the unified model
// flattens.
func (a *Any) ELF() *elf.File { return a.elf }

// MachO returns the underlying Mach-O parser, or nil.
func (a *Any) MachO() *macho.File { return a.macho }

// PECOFF returns the underlying PE/COFF parser, or nil.
func (a *Any) PECOFF() *pecoff.File { return a.pe }

// XCOFF returns the underlying XCOFF parser, or nil.
func (a *Any) XCOFF() *xcoff.File { return a.xcoff }
