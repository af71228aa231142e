// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build constructs relocatable object files in memory:
// ELF (both classes and byte orders), COFF, Mach-O (32- and 64-bit),
// and XCOFF32. An Object accumulates sections, symbols, relocations,
// and COMDAT groups, then Finalize validates the whole and serializes
// it in a single deterministic pass. Output from identical input is
// byte-identical.
package build

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"

	objfile "github.com/aclements/go-objfile"
	"github.com/aclements/go-objfile/pod"
)

// ErrFinalized reports mutation of, or a second Finalize on, an
// already-finalized Object.
var ErrFinalized = errors.New("build: object already finalized")

// A Section describes one section to emit. Size is normally set by
// SetSectionData; set it directly only for sections without file
// bytes (BSS).
type Section struct {
	Name  string
	Kind  objfile.SectionKind
	Addr  uint64
	Size  uint64
	Align uint64 // bytes; 0 means 1

	data []byte
}

// A Symbol describes one symbol to emit. Section is an index returned
// by AddSection or one of the reserved sentinels.
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Section objfile.SectionIndex
	Kind    objfile.SymbolKind
	Binding objfile.Binding
}

// A Reloc describes one relocation against Section at Offset,
// referencing a Symbol index returned by AddSymbol (not a raw
// table index; Finalize maps it to the emitted numbering). Type is
// the raw format- and architecture-specific relocation kind.
type Reloc struct {
	Section objfile.SectionIndex
	Offset  uint64
	Symbol  objfile.SymbolIndex
	Type    uint32
	Addend  int64
}

// A Comdat describes one deduplicable group: the signature symbol
// (an AddSymbol index), a format-specific selection policy, and the
// member sections.
type Comdat struct {
	Symbol    objfile.SymbolIndex
	Selection uint32
	Sections  []objfile.SectionIndex
}

type state uint8

const (
	stateEmpty state = iota
	stateAccumulating
	stateFinalized
)

// An Object accumulates the logical content of one relocatable object
// file. It is not safe for concurrent use. After Finalize the Object
// is spent: every further mutation or Finalize returns ErrFinalized.
type Object struct {
	format  objfile.Format
	machine objfile.Machine
	endian  pod.Endian

	state    state
	entry    uint64
	hasEntry bool

	sections []Section
	symbols  []Symbol
	relocs   []Reloc
	comdats  []Comdat
}

// NewObject starts an empty object of the given format. The
// format/endian pairing is validated here: XCOFF is always big-endian
// and COFF always little-endian.
func NewObject(format objfile.Format, machine objfile.Machine, endian pod.Endian) (*Object, error) {
	switch format {
	case objfile.FormatELF32, objfile.FormatELF64:
	case objfile.FormatMachO32, objfile.FormatMachO64:
	case objfile.FormatCOFF:
		if endian != pod.Little {
			return nil, fmt.Errorf("build: COFF is little-endian only")
		}
	case objfile.FormatXCOFF32:
		if endian != pod.Big {
			return nil, fmt.Errorf("build: XCOFF is big-endian only")
		}
	default:
		return nil, fmt.Errorf("build: cannot write format %v", format)
	}
	return &Object{format: format, machine: machine, endian: endian}, nil
}

// Format returns the output format.
func (o *Object) Format() objfile.Format { return o.format }

func (o *Object) mutable() error {
	if o.state == stateFinalized {
		return ErrFinalized
	}
	o.state = stateAccumulating
	return nil
}

// AddSection appends a section and returns its index, stable for the
// Object's lifetime and valid immediately in symbols and relocations.
// Indices are 1-based, matching the emitted numbering on every
// format (the ELF emitter reserves index 0 for the null section).
func (o *Object) AddSection(s Section) (objfile.SectionIndex, error) {
	if err := o.mutable(); err != nil {
		return 0, err
	}
	o.sections = append(o.sections, s)
	return objfile.SectionIndex(len(o.sections)), nil
}

// SetSectionData sets the file bytes of section i and, unless the
// section declared an explicit size, its size.
func (o *Object) SetSectionData(i objfile.SectionIndex, data []byte) error {
	if err := o.mutable(); err != nil {
		return err
	}
	s, err := o.section(i)
	if err != nil {
		return err
	}
	s.data = data
	if s.Size == 0 {
		s.Size = uint64(len(data))
	}
	return nil
}

func (o *Object) section(i objfile.SectionIndex) (*Section, error) {
	if i < 1 || int(i) > len(o.sections) {
		return nil, &objfile.InvalidIndexError{Kind: "section", Index: uint32(i), Num: len(o.sections)}
	}
	return &o.sections[i-1], nil
}

// AddSymbol appends a symbol and returns its index. The index is an
// accumulation-order handle for AddReloc and AddComdat; Finalize maps
// it to each format's emitted numbering.
func (o *Object) AddSymbol(s Symbol) (objfile.SymbolIndex, error) {
	if err := o.mutable(); err != nil {
		return 0, err
	}
	o.symbols = append(o.symbols, s)
	return objfile.SymbolIndex(len(o.symbols) - 1), nil
}

// AddReloc appends a relocation.
func (o *Object) AddReloc(r Reloc) error {
	if err := o.mutable(); err != nil {
		return err
	}
	o.relocs = append(o.relocs, r)
	return nil
}

// AddComdat appends a COMDAT group.
func (o *Object) AddComdat(c Comdat) error {
	if err := o.mutable(); err != nil {
		return err
	}
	o.comdats = append(o.comdats, c)
	return nil
}

// SetEntry records the entry point, honored by formats whose object
// layout carries one (ELF, XCOFF).
func (o *Object) SetEntry(addr uint64) error {
	if err := o.mutable(); err != nil {
		return err
	}
	o.entry, o.hasEntry = addr, true
	return nil
}

// Finalize validates the accumulated content and serializes it. All
// validation failures are aggregated and returned together; the
// Object is spent afterwards either way.
func (o *Object) Finalize() ([]byte, error) {
	if o.state == stateFinalized {
		return nil, ErrFinalized
	}
	o.state = stateFinalized

	if err := o.validate(); err != nil {
		return nil, err
	}

	switch o.format {
	case objfile.FormatELF32, objfile.FormatELF64:
		return o.emitELF()
	case objfile.FormatMachO32, objfile.FormatMachO64:
		return o.emitMachO()
	case objfile.FormatCOFF:
		return o.emitCOFF()
	case objfile.FormatXCOFF32:
		return o.emitXCOFF()
	}
	return nil, fmt.Errorf("build: cannot write format %v", o.format)
}

func (o *Object) validate() error {
	var errs error
	sectionOK := func(i objfile.SectionIndex) bool {
		return i >= 1 && int(i) <= len(o.sections)
	}

	for i := range o.symbols {
		s := &o.symbols[i]
		if !sectionOK(s.Section) && !s.Section.IsReserved() {
			errs = multierr.Append(errs, fmt.Errorf(
				"build: symbol %d (%q): dangling section index %d", i, s.Name, s.Section))
		}
	}
	for i, r := range o.relocs {
		if !sectionOK(r.Section) {
			errs = multierr.Append(errs, fmt.Errorf(
				"build: relocation %d: dangling section index %d", i, r.Section))
		}
		if int(r.Symbol) >= len(o.symbols) {
			errs = multierr.Append(errs, fmt.Errorf(
				"build: relocation %d: dangling symbol index %d", i, r.Symbol))
		}
	}
	for i, c := range o.comdats {
		if int(c.Symbol) >= len(o.symbols) {
			errs = multierr.Append(errs, fmt.Errorf(
				"build: comdat %d: dangling symbol index %d", i, c.Symbol))
		}
		for _, m := range c.Sections {
			if !sectionOK(m) {
				errs = multierr.Append(errs, fmt.Errorf(
					"build: comdat %d: dangling member section index %d", i, m))
			}
		}
	}

	if !o.format.Is64() {
		for i := range o.sections {
			s := &o.sections[i]
			if s.Addr > math.MaxUint32 || s.Size > math.MaxUint32 {
				errs = multierr.Append(errs, fmt.Errorf(
					"build: section %q does not fit a 32-bit format", s.Name))
			}
		}
		for i := range o.symbols {
			s := &o.symbols[i]
			if s.Value > math.MaxUint32 || s.Size > math.MaxUint32 {
				errs = multierr.Append(errs, fmt.Errorf(
					"build: symbol %q does not fit a 32-bit format", s.Name))
			}
		}
		for i, r := range o.relocs {
			if r.Offset > math.MaxUint32 {
				errs = multierr.Append(errs, fmt.Errorf(
					"build: relocation %d offset does not fit a 32-bit format", i))
			}
		}
		if o.hasEntry && o.entry > math.MaxUint32 {
			errs = multierr.Append(errs, fmt.Errorf(
				"build: entry point does not fit a 32-bit format"))
		}
	}
	return errs
}

// sectionRelocs returns the relocations targeting 1-based section i,
// in accumulation order.
func (o *Object) sectionRelocs(i int) []Reloc {
	var out []Reloc
	for _, r := range o.relocs {
		if int(r.Section) == i {
			out = append(out, r)
		}
	}
	return out
}

func (o *Object) is64() bool { return o.format.Is64() }
