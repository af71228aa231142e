// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"fmt"

	"github.com/aclements/go-objfile/pod"
)

// A Sym is one decoded symbol table entry. Shndx is the resolved
// section index: for symbols whose on-disk index is SHN_XINDEX it has
// been replaced by the 32-bit index from the SHT_SYMTAB_SHNDX table,
// so reserved sentinels (SHN_UNDEF, SHN_ABS, SHN_COMMON) appear as
// themselves and everything else is a real section index.
type Sym struct {
	Name  string
	Info  uint8
	Other uint8
	Shndx uint32
	Value uint64
	Size  uint64
}

// Bind returns the binding half of st_info.
func (s *Sym) Bind() SymBind { return SymBind(s.Info >> 4) }

// Type returns the type half of st_info.
func (s *Sym) Type() SymType { return SymType(s.Info & 0xf) }

// IsUndefined reports whether the symbol has no defining section.
func (s *Sym) IsUndefined() bool { return s.Shndx == SHN_UNDEF }

// IsAbsolute reports whether the symbol's value is an absolute
// address rather than section-relative.
func (s *Sym) IsAbsolute() bool { return s.Shndx == SHN_ABS }

// IsCommon reports whether the symbol labels a common block not yet
// allocated to a section.
func (s *Sym) IsCommon() bool { return s.Shndx == SHN_COMMON }

// Symbols returns the entries of the .symtab symbol table in on-disk
// order, decoded once and cached. Files without a symbol table return
// an empty slice.
func (f *File) Symbols() ([]Sym, error) {
	f.symsOnce.Do(func() {
		f.syms, f.symsErr = f.readSymbols(SHT_SYMTAB)
	})
	return f.syms, f.symsErr
}

// DynamicSymbols returns the entries of the .dynsym table in on-disk
// order. These are not cached; dynamic tables are normally consulted
// once.
func (f *File) DynamicSymbols() ([]Sym, error) {
	return f.readSymbols(SHT_DYNSYM)
}

func (f *File) readSymbols(typ SectionType) ([]Sym, error) {
	symtabIdx := f.findSection(typ)
	if symtabIdx < 0 {
		return nil, nil
	}
	symtab, err := f.rawSectionHeader(symtabIdx)
	if err != nil {
		return nil, err
	}

	entsize := uint64(symSize32)
	align := uint64(4)
	if f.is64 {
		entsize, align = symSize64, 8
	}
	if symtab.Entsize != 0 && symtab.Entsize < entsize {
		return nil, fmt.Errorf("elf: symbol entry size %d smaller than %d", symtab.Entsize, entsize)
	}
	stride := symtab.Entsize
	if stride == 0 {
		stride = entsize
	}
	tv, err := f.view.Sub(symtab.Offset, symtab.Size)
	if err != nil {
		return nil, fmt.Errorf("elf: symbol table: %w", err)
	}
	count := symtab.Size / stride

	strtab, err := f.stringTable(symtab.Link)
	if err != nil {
		return nil, err
	}
	xindex, err := f.symtabShndx(symtabIdx)
	if err != nil {
		return nil, err
	}

	syms := make([]Sym, count)
	for i := uint64(0); i < count; i++ {
		v, err := tv.Struct(i*stride, entsize, align)
		if err != nil {
			return nil, fmt.Errorf("elf: symbol %d: %w", i, err)
		}
		c := pod.NewCursor(v)
		s := &syms[i]
		var nameIndex uint32
		var shndx uint16
		if f.is64 {
			nameIndex, _ = c.U32()
			s.Info, _ = c.U8()
			s.Other, _ = c.U8()
			shndx, _ = c.U16()
			s.Value, _ = c.U64()
			s.Size, _ = c.U64()
		} else {
			nameIndex, _ = c.U32()
			v32, _ := c.U32()
			sz32, _ := c.U32()
			s.Value, s.Size = uint64(v32), uint64(sz32)
			s.Info, _ = c.U8()
			s.Other, _ = c.U8()
			shndx, _ = c.U16()
		}
		s.Shndx = uint32(shndx)
		if shndx == SHN_XINDEX {
			if i >= uint64(len(xindex)) {
				return nil, fmt.Errorf("elf: symbol %d: SHN_XINDEX without extended index entry", i)
			}
			s.Shndx = xindex[i]
		}
		if s.Shndx < SHN_LORESERVE && uint64(s.Shndx) >= f.shnum {
			return nil, fmt.Errorf("elf: symbol %d: section index %d out of range (%d sections)", i, s.Shndx, f.shnum)
		}
		if nameIndex != 0 {
			s.Name, err = strtab.CString(uint64(nameIndex))
			if err != nil {
				return nil, fmt.Errorf("elf: symbol %d name: %w", i, err)
			}
		}
	}
	return syms, nil
}

// stringTable returns a view over the string table at section index
// link.
func (f *File) stringTable(link uint32) (pod.View, error) {
	if link == SHN_UNDEF {
		return pod.NewView(nil, f.Endian), nil
	}
	sh, err := f.rawSectionHeader(int(link))
	if err != nil {
		return pod.View{}, err
	}
	if sh.Type != SHT_STRTAB {
		return pod.View{}, fmt.Errorf("elf: section %d is %v, not SHT_STRTAB", link, sh.Type)
	}
	v, err := f.view.Sub(sh.Offset, sh.Size)
	if err != nil {
		return pod.View{}, fmt.Errorf("elf: string table: %w", err)
	}
	return v, nil
}

// symtabShndx returns the extended section index table associated
// with the symbol table at symtabIdx, or nil if there is none.
func (f *File) symtabShndx(symtabIdx int) ([]uint32, error) {
	for i := 0; i < f.NumSections(); i++ {
		sh, err := f.rawSectionHeader(i)
		if err != nil {
			return nil, err
		}
		if sh.Type != SHT_SYMTAB_SHNDX || int(sh.Link) != symtabIdx {
			continue
		}
		v, err := f.view.Sub(sh.Offset, sh.Size)
		if err != nil {
			return nil, fmt.Errorf("elf: SHT_SYMTAB_SHNDX: %w", err)
		}
		out := make([]uint32, sh.Size/4)
		for j := range out {
			out[j], _ = v.U32(uint64(j) * 4)
		}
		return out, nil
	}
	return nil, nil
}
