// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcoff

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aclements/go-objfile/pod"
)

// ErrNotXCOFF reports that the buffer does not start with an XCOFF
// magic number. It is distinct from parse errors so callers can probe
// multiple formats cheaply.
var ErrNotXCOFF = errors.New("not an XCOFF file")

// Match reports whether data starts with a 32-bit or 64-bit XCOFF
// magic number.
func Match(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	m := uint16(data[0])<<8 | uint16(data[1])
	return m == Magic32 || m == Magic64
}

// FileHeader holds the decoded XCOFF file header plus the entry point
// from the auxiliary header, when one is present.
type FileHeader struct {
	Magic uint16
	Flags uint16

	Entry    uint64
	HasEntry bool
}

// A SectionHeader is one decoded section table entry.
type SectionHeader struct {
	Name        string
	PAddr       uint64
	VAddr       uint64
	Size        uint64
	Offset      uint64 // s_scnptr
	RelocOffset uint64
	NumRelocs   uint32
	Flags       uint32
}

// Type returns the section's STYP_ bits.
func (sh *SectionHeader) Type() uint32 { return sh.Flags & 0xffff }

// A Sym is one decoded symbol record, excluding auxiliary records.
// Index is the record's raw symbol-table index, which is what
// relocations reference (auxiliary records consume raw indices too).
type Sym struct {
	Index         uint32
	Name          string
	Value         uint64
	SectionNumber int16 // 1-based, or a sentinel
	Type          uint16
	StorageClass  uint8
	NumAux        uint8

	// Csect aux data, present for C_EXT, C_WEAKEXT, C_STAT and
	// C_HIDEXT symbols carrying aux records.
	CsectType     uint8 // XTY_ bits
	CsectAlign    uint8 // log2
	StorageMap    uint8 // XMC_ class
	SectionLength uint64
}

// IsUndefined reports whether the symbol is an undefined external.
func (s *Sym) IsUndefined() bool { return s.SectionNumber == N_UNDEF && s.StorageClass != C_FILE }

// IsAbsolute reports whether the symbol's value is an absolute address.
func (s *Sym) IsAbsolute() bool { return s.SectionNumber == N_ABS }

// IsFunction reports whether the symbol is a label or csect holding
// program code.
func (s *Sym) IsFunction() bool {
	return (s.CsectType == XTY_SD || s.CsectType == XTY_LD) && s.StorageMap == XMC_PR
}

// A Reloc is one decoded relocation entry. SymbolIndex is a raw
// symbol-table index. Size holds r_rsize: the low 6 bits are the field
// bit length minus one, bit 7 requests sign extension.
type Reloc struct {
	VAddr       uint64
	SymbolIndex uint32
	Size        uint8
	Type        uint8
}

// A File is a parsed XCOFF object. It borrows the buffer passed to
// NewFile and is safe for concurrent readers.
type File struct {
	FileHeader

	view pod.View
	is64 bool

	sections []SectionHeader

	symOff   uint64
	numSyms  uint64
	strtab   pod.View
	symsOnce sync.Once
	syms     []Sym
	symsErr  error
}

// Is64 reports whether the object uses the 64-bit XCOFF layout.
func (f *File) Is64() bool { return f.is64 }

// NewFile parses the XCOFF object in data. The section table is
// decoded here; symbols and relocations decode on demand.
func NewFile(data []byte, mode pod.Mode) (*File, error) {
	if !Match(data) {
		return nil, ErrNotXCOFF
	}
	f := &File{}
	f.view = pod.NewViewMode(data, pod.Big, mode)

	magic, _ := f.view.U16(0)
	f.Magic = magic
	f.is64 = magic == Magic64

	hdrSize := uint64(fileHeaderSize32)
	if f.is64 {
		hdrSize = fileHeaderSize64
	}
	hv, err := f.view.Sub(0, hdrSize)
	if err != nil {
		return nil, fmt.Errorf("xcoff: file header: %w", err)
	}
	var nsections uint16
	var optSize uint16
	if f.is64 {
		nsections, _ = hv.U16(2)
		f.symOff, _ = hv.U64(8)
		optSize, _ = hv.U16(16)
		f.Flags, _ = hv.U16(18)
		n, err := hv.U32(20)
		if err != nil {
			return nil, fmt.Errorf("xcoff: file header: %w", err)
		}
		f.numSyms = uint64(n)
	} else {
		nsections, _ = hv.U16(2)
		symPtr, _ := hv.U32(8)
		n, _ := hv.U32(12)
		optSize, _ = hv.U16(16)
		f.Flags, err = hv.U16(18)
		if err != nil {
			return nil, fmt.Errorf("xcoff: file header: %w", err)
		}
		f.symOff = uint64(symPtr)
		f.numSyms = uint64(n)
	}

	if optSize > 0 {
		if err := f.readAuxHeader(hdrSize, uint64(optSize)); err != nil {
			return nil, err
		}
	}

	if f.numSyms > 0 {
		if f.symOff > f.view.Len() || f.numSyms > (f.view.Len()-f.symOff)/symbolSize {
			return nil, fmt.Errorf("xcoff: %d symbols at %#x exceed file size: %w",
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
			return nil, fmt.Errorf("xcoff: string table: %w", err)
		}
	}

	shSize := uint64(sectHeaderSize32)
	if f.is64 {
		shSize = sectHeaderSize64
	}
	secOff := hdrSize + uint64(optSize)
	if secOff > f.view.Len() || uint64(nsections) > (f.view.Len()-secOff)/shSize {
		return nil, fmt.Errorf("xcoff: %d section headers exceed file size: %w", nsections, pod.ErrOutOfBounds)
	}
	f.sections = make([]SectionHeader, nsections)
	for i := range f.sections {
		if err := f.readSectionHeader(secOff+uint64(i)*shSize, &f.sections[i]); err != nil {
			return nil, fmt.Errorf("xcoff: section header %d: %w", i, err)
		}
	}
	return f, nil
}

// readAuxHeader extracts the entry point from the auxiliary (optional)
// header when the header is long enough to contain it.
func (f *File) readAuxHeader(off, size uint64) error {
	hv, err := f.view.Sub(off, size)
	if err != nil {
		return fmt.Errorf("xcoff: aux header: %w", err)
	}
	if f.is64 {
		if v, err := hv.U64(auxEntry64Off); err == nil {
			f.Entry = v
			f.HasEntry = true
		}
	} else {
		if v, err := hv.U32(auxEntry32Off); err == nil {
			f.Entry = uint64(v)
			f.HasEntry = true
		}
	}
	return nil
}

func (f *File) readSectionHeader(off uint64, sh *SectionHeader) error {
	size := uint64(sectHeaderSize32)
	if f.is64 {
		size = sectHeaderSize64
	}
	hv, err := f.view.Sub(off, size)
	if err != nil {
		return err
	}
	c := pod.NewCursor(hv)
	rawName, _ := c.Fixed(8)
	sh.Name = rawName
	if f.is64 {
		sh.PAddr, _ = c.U64()
		sh.VAddr, _ = c.U64()
		sh.Size, _ = c.U64()
		sh.Offset, _ = c.U64()
		sh.RelocOffset, _ = c.U64()
		c.Skip(8) // s_lnnoptr
		sh.NumRelocs, _ = c.U32()
		c.Skip(4) // s_nlnno
		sh.Flags, err = c.U32()
	} else {
		var v uint32
		v, _ = c.U32()
		sh.PAddr = uint64(v)
		v, _ = c.U32()
		sh.VAddr = uint64(v)
		v, _ = c.U32()
		sh.Size = uint64(v)
		v, _ = c.U32()
		sh.Offset = uint64(v)
		v, _ = c.U32()
		sh.RelocOffset = uint64(v)
		c.Skip(4) // s_lnnoptr
		var n uint16
		n, _ = c.U16()
		sh.NumRelocs = uint32(n)
		c.Skip(2) // s_nlnno
		sh.Flags, err = c.U32()
	}
	return err
}

// Sections returns the decoded section table. Section number n
// (1-based, as used by symbols) is Sections()[n-1].
func (f *File) Sections() []SectionHeader { return f.sections }

// Section returns the section with 1-based number n.
func (f *File) Section(n int) (SectionHeader, error) {
	if n < 1 || n > len(f.sections) {
		return SectionHeader{}, fmt.Errorf("xcoff: section number %d out of range (%d sections)", n, len(f.sections))
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

// Data returns the file bytes of section number n. BSS sections have
// no file bytes.
func (f *File) Data(n int) ([]byte, error) {
	sh, err := f.Section(n)
	if err != nil {
		return nil, err
	}
	if sh.Type()&STYP_BSS != 0 || sh.Offset == 0 {
		return nil, nil
	}
	b, err := f.view.Bytes(sh.Offset, sh.Size)
	if err != nil {
		return nil, fmt.Errorf("xcoff: section %q data: %w", sh.Name, err)
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
	return Sym{}, fmt.Errorf("xcoff: no symbol at raw index %d", i)
}

func (f *File) readSymbols() ([]Sym, error) {
	if f.numSyms == 0 {
		return nil, nil
	}
	tv, err := f.view.Sub(f.symOff, f.numSyms*symbolSize)
	if err != nil {
		return nil, fmt.Errorf("xcoff: symbol table: %w", err)
	}
	var syms []Sym
	for i := uint64(0); i < f.numSyms; i++ {
		sv, err := tv.Sub(i*symbolSize, symbolSize)
		if err != nil {
			return nil, fmt.Errorf("xcoff: symbol %d: %w", i, err)
		}
		var s Sym
		s.Index = uint32(i)
		if f.is64 {
			s.Value, _ = sv.U64(0)
			off, _ := sv.U32(8)
			s.Name, err = f.strtab.CString(uint64(off))
			if err != nil {
				return nil, fmt.Errorf("xcoff: symbol %d name: %w", i, err)
			}
			sn, _ := sv.U16(12)
			s.SectionNumber = int16(sn)
			s.Type, _ = sv.U16(14)
			s.StorageClass, _ = sv.U8(16)
			s.NumAux, _ = sv.U8(17)
		} else {
			zeroes, _ := sv.U32(0)
			if zeroes == 0 {
				off, _ := sv.U32(4)
				s.Name, err = f.strtab.CString(uint64(off))
				if err != nil {
					return nil, fmt.Errorf("xcoff: symbol %d name: %w", i, err)
				}
			} else {
				c := pod.NewCursor(sv)
				s.Name, _ = c.Fixed(8)
			}
			v, _ := sv.U32(8)
			s.Value = uint64(v)
			sn, _ := sv.U16(12)
			s.SectionNumber = int16(sn)
			s.Type, _ = sv.U16(14)
			s.StorageClass, _ = sv.U8(16)
			s.NumAux, _ = sv.U8(17)
		}

		if s.SectionNumber > 0 && int(s.SectionNumber) > len(f.sections) {
			return nil, fmt.Errorf("xcoff: symbol %d: section number %d out of range (%d sections)",
				i, s.SectionNumber, len(f.sections))
		}

		if s.NumAux > 0 && i+uint64(s.NumAux) < f.numSyms {
			switch s.StorageClass {
			case C_EXT, C_WEAKEXT, C_STAT, C_HIDEXT:
				// The csect aux is the last aux record.
				av, err := tv.Sub((i+uint64(s.NumAux))*symbolSize, symbolSize)
				if err == nil {
					f.readCsectAux(av, &s)
				}
			}
		}

		syms = append(syms, s)
		i += uint64(s.NumAux) // aux records consume raw indices
	}
	return syms, nil
}

// readCsectAux decodes a csect auxiliary record into s.
func (f *File) readCsectAux(av pod.View, s *Sym) {
	if f.is64 {
		// The 64-bit layout tags aux records; only decode csect aux.
		if t, err := av.U8(17); err != nil || t != auxCsect64 {
			return
		}
		lo, _ := av.U32(0)
		hi, _ := av.U32(12)
		s.SectionLength = uint64(hi)<<32 | uint64(lo)
		smtyp, _ := av.U8(10)
		s.CsectType = smtyp & 0x7
		s.CsectAlign = smtyp >> 3
		s.StorageMap, _ = av.U8(11)
	} else {
		l, _ := av.U32(0)
		s.SectionLength = uint64(l)
		smtyp, _ := av.U8(10)
		s.CsectType = smtyp & 0x7
		s.CsectAlign = smtyp >> 3
		s.StorageMap, _ = av.U8(11)
	}
}

// Relocations returns the relocation entries of section number n in
// on-disk order.
func (f *File) Relocations(n int) ([]Reloc, error) {
	sh, err := f.Section(n)
	if err != nil {
		return nil, err
	}
	if sh.NumRelocs == 0 {
		return nil, nil
	}
	rsize := uint64(relocSize32)
	if f.is64 {
		rsize = relocSize64
	}
	tv, err := f.view.Sub(sh.RelocOffset, uint64(sh.NumRelocs)*rsize)
	if err != nil {
		return nil, fmt.Errorf("xcoff: section %q relocations: %w", sh.Name, err)
	}
	out := make([]Reloc, sh.NumRelocs)
	for i := range out {
		rv, _ := tv.Sub(uint64(i)*rsize, rsize)
		if f.is64 {
			out[i].VAddr, _ = rv.U64(0)
			out[i].SymbolIndex, _ = rv.U32(8)
			out[i].Size, _ = rv.U8(12)
			out[i].Type, _ = rv.U8(13)
		} else {
			v, _ := rv.U32(0)
			out[i].VAddr = uint64(v)
			out[i].SymbolIndex, _ = rv.U32(4)
			out[i].Size, _ = rv.U8(8)
			out[i].Type, _ = rv.U8(9)
		}
	}
	return out, nil
}
