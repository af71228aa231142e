// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pecoff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aclements/go-objfile/pod"
)

// ErrNotPE reports that the buffer is neither a PE image nor a
// recognizable COFF object. It is distinct from parse errors so
// callers can probe multiple formats cheaply.
var ErrNotPE = errors.New("not a PE or COFF file")

// MatchPE reports whether data starts with an MS-DOS stub leading to
// a PE signature.
func MatchPE(data []byte) bool {
	_, ok := peOffset(data)
	return ok
}

// MatchCOFF reports whether data plausibly starts with a COFF file
// header for a known machine. COFF objects carry no magic, so this
// check is weak and should be probed after the strongly-tagged
// formats.
func MatchCOFF(data []byte) bool {
	if len(data) < coffHeaderSize {
		return false
	}
	switch Machine(binary.LittleEndian.Uint16(data)) {
	case IMAGE_FILE_MACHINE_I386, IMAGE_FILE_MACHINE_ARM, IMAGE_FILE_MACHINE_ARMNT,
		IMAGE_FILE_MACHINE_AMD64, IMAGE_FILE_MACHINE_ARM64, IMAGE_FILE_MACHINE_RISCV64:
		return true
	}
	return false
}

// peOffset returns the file offset of the COFF header inside a PE
// image, following the MS-DOS stub.
func peOffset(data []byte) (uint64, bool) {
	if len(data) < 0x40 || data[0] != 'M' || data[1] != 'Z' {
		return 0, false
	}
	lfanew := binary.LittleEndian.Uint32(data[0x3c:])
	off := uint64(lfanew)
	if off+4 < off || off+4 > uint64(len(data)) {
		return 0, false
	}
	if string(data[off:off+4]) != "PE\x00\x00" {
		return 0, false
	}
	return off + 4, true
}

// FileHeader holds the decoded COFF file header plus, for PE images,
// the optional-header fields this package surfaces.
type FileHeader struct {
	Machine         Machine
	Characteristics uint16

	// PE-only; zero for bare COFF objects.
	IsPE       bool
	PE32Plus   bool
	ImageBase  uint64
	EntryPoint uint32 // RVA
}

// A SectionHeader is one decoded section table entry.
type SectionHeader struct {
	Name            string // long names resolved through the string table
	VirtualSize     uint32
	VirtualAddress  uint32
	Size            uint32 // SizeOfRawData
	Offset          uint32 // PointerToRawData
	RelocOffset     uint32
	NumRelocs       uint16
	Characteristics uint32
}

// A Sym is one decoded symbol record, excluding auxiliary records.
// Index is the record's raw symbol-table index, which is what
// relocations reference (auxiliary records consume raw indices too).
type Sym struct {
	Index         uint32
	Name          string
	Value         uint32
	SectionNumber int16 // 1-based, or a sentinel
	Type          uint16
	StorageClass  uint8
	NumAux        uint8

	// Section-definition aux data, present when the symbol defines a
	// section (storage class static, one aux record).
	AuxChecksum  uint32
	AuxSelection uint8
	AuxAssoc     uint16
}

// IsUndefined reports whether the symbol is an undefined external.
func (s *Sym) IsUndefined() bool {
	return s.SectionNumber == IMAGE_SYM_UNDEFINED && s.StorageClass == IMAGE_SYM_CLASS_EXTERNAL
}

// IsAbsolute reports whether the symbol's value is an absolute address.
func (s *Sym) IsAbsolute() bool { return s.SectionNumber == IMAGE_SYM_ABSOLUTE }

// A Reloc is one decoded relocation entry. SymbolTableIndex is a raw
// symbol-table index.
type Reloc struct {
	VirtualAddress   uint32
	SymbolTableIndex uint32
	Type             uint16
}

// A File is a parsed PE image or COFF object. It borrows the buffer
// passed to NewFile and is safe for concurrent readers.
type File struct {
	FileHeader

	view pod.View

	sections []SectionHeader

	symOff   uint64
	numSyms  uint64
	strtab   pod.View
	symsOnce sync.Once
	syms     []Sym
	symsErr  error
}

// NewFile parses the PE image or COFF object in data. The section
// table is decoded here; symbols and relocations decode on demand.
func NewFile(data []byte, mode pod.Mode) (*File, error) {
	f := &File{}
	// COFF fields are always little-endian.
	f.view = pod.NewViewMode(data, pod.Little, mode)

	base := uint64(0)
	if off, ok := peOffset(data); ok {
		base = off
		f.IsPE = true
	} else if !MatchCOFF(data) {
		return nil, ErrNotPE
	}

	hv, err := f.view.Sub(base, coffHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("pecoff: file header: %w", err)
	}
	c := pod.NewCursor(hv)
	machine, _ := c.U16()
	nsections, _ := c.U16()
	c.Skip(4) // timestamp
	symPtr, _ := c.U32()
	numSyms, _ := c.U32()
	optSize, _ := c.U16()
	chars, err := c.U16()
	if err != nil {
		return nil, fmt.Errorf("pecoff: file header: %w", err)
	}
	f.Machine = Machine(machine)
	f.Characteristics = chars

	if f.IsPE && optSize > 0 {
		if err := f.readOptionalHeader(base+coffHeaderSize, uint64(optSize)); err != nil {
			return nil, err
		}
	}

	// Symbol table location; rows decode lazily.
	f.symOff = uint64(symPtr)
	f.numSyms = uint64(numSyms)
	if f.numSyms > 0 {
		if f.symOff > f.view.Len() || f.numSyms > (f.view.Len()-f.symOff)/symbolSize {
			return nil, fmt.Errorf("pecoff: %d symbols at %#x exceed file size: %w",
				f.numSyms, f.symOff, pod.ErrOutOfBounds)
		}
		// The string table follows the symbol table; its first word is
		// its total size, length field included.
		strOff := f.symOff + f.numSyms*symbolSize
		strSize, err := f.view.U32(strOff)
		if err != nil || strSize < 4 {
			strSize = 4
		}
		f.strtab, err = f.view.Sub(strOff, uint64(strSize))
		if err != nil {
			return nil, fmt.Errorf("pecoff: string table: %w", err)
		}
	}

	secOff := base + coffHeaderSize + uint64(optSize)
	if uint64(nsections) > (f.view.Len()-min64(secOff, f.view.Len()))/sectionHeaderSize {
		return nil, fmt.Errorf("pecoff: %d section headers exceed file size: %w", nsections, pod.ErrOutOfBounds)
	}
	f.sections = make([]SectionHeader, nsections)
	for i := range f.sections {
		if err := f.readSectionHeader(secOff+uint64(i)*sectionHeaderSize, &f.sections[i]); err != nil {
			return nil, fmt.Errorf("pecoff: section header %d: %w", i, err)
		}
	}
	return f, nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func (f *File) readOptionalHeader(off, size uint64) error {
	hv, err := f.view.Sub(off, size)
	if err != nil {
		return fmt.Errorf("pecoff: optional header: %w", err)
	}
	magic, err := hv.U16(0)
	if err != nil {
		return fmt.Errorf("pecoff: optional header: %w", err)
	}
	switch magic {
	case OptionalHeaderMagicPE32:
		f.EntryPoint, _ = hv.U32(16)
		base, err := hv.U32(28)
		if err != nil {
			return fmt.Errorf("pecoff: optional header: %w", err)
		}
		f.ImageBase = uint64(base)
	case OptionalHeaderMagicPE32Plus:
		f.PE32Plus = true
		f.EntryPoint, _ = hv.U32(16)
		f.ImageBase, err = hv.U64(24)
		if err != nil {
			return fmt.Errorf("pecoff: optional header: %w", err)
		}
	default:
		return fmt.Errorf("pecoff: unknown optional header magic %#x", magic)
	}
	return nil
}

func (f *File) readSectionHeader(off uint64, sh *SectionHeader) error {
	hv, err := f.view.Sub(off, sectionHeaderSize)
	if err != nil {
		return err
	}
	c := pod.NewCursor(hv)
	rawName, _ := c.Fixed(8)
	sh.VirtualSize, _ = c.U32()
	sh.VirtualAddress, _ = c.U32()
	sh.Size, _ = c.U32()
	sh.Offset, _ = c.U32()
	sh.RelocOffset, _ = c.U32()
	c.Skip(4) // PointerToLinenumbers
	sh.NumRelocs, _ = c.U16()
	c.Skip(2) // NumberOfLinenumbers
	chars, err := c.U32()
	if err != nil {
		return err
	}
	sh.Characteristics = chars
	sh.Name, err = f.resolveName(rawName)
	return err
}

// resolveName maps a "/offset" section name to the string table.
func (f *File) resolveName(raw string) (string, error) {
	if len(raw) < 2 || raw[0] != '/' {
		return raw, nil
	}
	off, err := strconv.ParseUint(raw[1:], 10, 32)
	if err != nil {
		// Not a valid long-name reference; keep the raw bytes.
		return raw, nil
	}
	name, err := f.strtab.CString(off)
	if err != nil {
		return "", fmt.Errorf("long section name %q: %w", raw, err)
	}
	return name, nil
}

// Sections returns the decoded section table. Section number n
// (1-based, as used by symbols) is Sections()[n-1].
func (f *File) Sections() []SectionHeader { return f.sections }

// Section returns the section with 1-based number n.
func (f *File) Section(n int) (SectionHeader, error) {
	if n < 1 || n > len(f.sections) {
		return SectionHeader{}, fmt.Errorf("pecoff: section number %d out of range (%d sections)", n, len(f.sections))
	}
	return f.sections[n-1], nil
}

// SectionByName returns the first section with the given name and its
// 1-based number.
func (f *File) SectionByName(name string) (SectionHeader, int, bool) {
	for i, sh := range f.sections {
		if sh.Name == name {
			return sh, i + 1, true
		}
	}
	return SectionHeader{}, 0, false
}

// Data returns the file bytes of section number n. Uninitialized-data
// sections have no file bytes.
func (f *File) Data(n int) ([]byte, error) {
	sh, err := f.Section(n)
	if err != nil {
		return nil, err
	}
	if sh.Characteristics&IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0 || sh.Offset == 0 {
		return nil, nil
	}
	size := uint64(sh.Size)
	// Images commonly pad SizeOfRawData past VirtualSize; expose the
	// stored bytes as-is.
	b, err := f.view.Bytes(uint64(sh.Offset), size)
	if err != nil {
		return nil, fmt.Errorf("pecoff: section %q data: %w", sh.Name, err)
	}
	return b, nil
}

// NumRawSymbols returns the raw symbol-record count, auxiliary
// records included.
func (f *File) NumRawSymbols() int { return int(f.numSyms) }

// Symbols returns the primary symbol records in on-disk order,
// auxiliary records folded into their owners, decoded once and cached.
func (f *File) Symbols() ([]Sym, error) {
	f.symsOnce.Do(func() {
		f.syms, f.symsErr = f.readSymbols()
	})
	return f.syms, f.symsErr
}

// SymbolByRawIndex returns the primary symbol at raw table index i,
// the form of reference used by relocations.
func (f *File) SymbolByRawIndex(i uint32) (Sym, error) {
	syms, err := f.Symbols()
	if err != nil {
		return Sym{}, err
	}
	// Raw indices are sorted; binary search.
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
	return Sym{}, fmt.Errorf("pecoff: no symbol at raw index %d", i)
}

func (f *File) readSymbols() ([]Sym, error) {
	if f.numSyms == 0 {
		return nil, nil
	}
	tv, err := f.view.Sub(f.symOff, f.numSyms*symbolSize)
	if err != nil {
		return nil, fmt.Errorf("pecoff: symbol table: %w", err)
	}
	var syms []Sym
	for i := uint64(0); i < f.numSyms; i++ {
		sv, err := tv.Sub(i*symbolSize, symbolSize)
		if err != nil {
			return nil, fmt.Errorf("pecoff: symbol %d: %w", i, err)
		}
		var s Sym
		s.Index = uint32(i)
		name, err := f.symbolName(sv)
		if err != nil {
			return nil, fmt.Errorf("pecoff: symbol %d name: %w", i, err)
		}
		s.Name = name
		s.Value, _ = sv.U32(8)
		sn, _ := sv.U16(12)
		s.SectionNumber = int16(sn)
		s.Type, _ = sv.U16(14)
		s.StorageClass, _ = sv.U8(16)
		s.NumAux, _ = sv.U8(17)

		if s.SectionNumber > 0 && int(s.SectionNumber) > len(f.sections) {
			return nil, fmt.Errorf("pecoff: symbol %d: section number %d out of range (%d sections)",
				i, s.SectionNumber, len(f.sections))
		}

		// A section-definition symbol's first aux record carries the
		// COMDAT selection.
		if s.NumAux > 0 && s.StorageClass == IMAGE_SYM_CLASS_STATIC && i+1 < f.numSyms {
			av, err := tv.Sub((i+1)*symbolSize, symbolSize)
			if err == nil {
				s.AuxChecksum, _ = av.U32(8)
				s.AuxAssoc, _ = av.U16(12)
				s.AuxSelection, _ = av.U8(14)
			}
		}

		syms = append(syms, s)
		i += uint64(s.NumAux) // aux records consume raw indices
	}
	return syms, nil
}

// symbolName decodes the 8-byte name field of a symbol record: inline
// NUL-padded bytes, or a zero dword followed by a string-table offset.
func (f *File) symbolName(sv pod.View) (string, error) {
	zeroes, _ := sv.U32(0)
	if zeroes != 0 {
		c := pod.NewCursor(sv)
		return c.Fixed(8)
	}
	off, _ := sv.U32(4)
	return f.strtab.CString(uint64(off))
}

// Relocations returns the relocation entries of section number n in
// on-disk order.
func (f *File) Relocations(n int) ([]Reloc, error) {
	sh, err := f.Section(n)
	if err != nil {
		return nil, err
	}
	count := uint64(sh.NumRelocs)
	relOff := uint64(sh.RelocOffset)
	if count == 0 {
		return nil, nil
	}
	if sh.Characteristics&IMAGE_SCN_LNK_NRELOC_OVFL != 0 && sh.NumRelocs == 0xffff {
		// Overflow: the real count is the VirtualAddress of the first
		// entry, which itself counts as one.
		real, err := f.view.U32(relOff)
		if err != nil {
			return nil, fmt.Errorf("pecoff: section %q relocation overflow count: %w", sh.Name, err)
		}
		if real == 0 {
			return nil, fmt.Errorf("pecoff: section %q has zero overflow relocation count", sh.Name)
		}
		count = uint64(real) - 1
		relOff += relocSize
	}
	tv, err := f.view.Sub(relOff, count*relocSize)
	if err != nil {
		return nil, fmt.Errorf("pecoff: section %q relocations: %w", sh.Name, err)
	}
	out := make([]Reloc, count)
	for i := range out {
		rv, _ := tv.Sub(uint64(i)*relocSize, relocSize)
		out[i].VirtualAddress, _ = rv.U32(0)
		out[i].SymbolTableIndex, _ = rv.U32(4)
		out[i].Type, _ = rv.U16(8)
	}
	return out, nil
}

// A Comdat describes one COMDAT section: its 1-based section number,
// its selection policy, and its leader-symbol name, gathered from the
// section-definition aux record.
type Comdat struct {
	SectionNumber int
	Selection     uint8
	Name          string // leader symbol name
}

// Comdats returns every COMDAT section grouping in the object.
func (f *File) Comdats() ([]Comdat, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}
	var out []Comdat
	for i, s := range syms {
		if s.SectionNumber <= 0 || int(s.SectionNumber) > len(f.sections) {
			continue
		}
		sh := f.sections[s.SectionNumber-1]
		if sh.Characteristics&IMAGE_SCN_LNK_COMDAT == 0 {
			continue
		}
		if s.StorageClass != IMAGE_SYM_CLASS_STATIC || s.NumAux == 0 || s.Name != sh.Name {
			continue
		}
		cd := Comdat{
			SectionNumber: int(s.SectionNumber),
			Selection:     s.AuxSelection,
		}
		// The COMDAT leader is the next primary symbol in the same
		// section, per the section-definition convention.
		if i+1 < len(syms) && syms[i+1].SectionNumber == s.SectionNumber {
			cd.Name = syms[i+1].Name
		}
		out = append(out, cd)
	}
	return out, nil
}
