// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"fmt"

	"github.com/aclements/go-objfile/pod"
)

// A Reloc is one decoded relocation entry. Type is the
// architecture-specific relocation kind from r_info. HasAddend
// distinguishes RELA entries (explicit addend) from REL entries
// (addend stored in the relocated field).
type Reloc struct {
	Off       uint64
	SymIndex  uint32
	Type      uint32
	Addend    int64
	HasAddend bool
}

// Relocations returns the relocations applying to section target,
// gathered from every SHT_REL/SHT_RELA section whose sh_info names
// target. Entries keep on-disk order.
func (f *File) Relocations(target int) ([]Reloc, error) {
	if target < 0 || uint64(target) >= f.shnum {
		return nil, fmt.Errorf("elf: section index %d out of range (%d sections)", target, f.shnum)
	}
	var out []Reloc
	for i := 0; i < f.NumSections(); i++ {
		sh, err := f.rawSectionHeader(i)
		if err != nil {
			return nil, err
		}
		if (sh.Type != SHT_REL && sh.Type != SHT_RELA) || int(sh.Info) != target {
			continue
		}
		relocs, err := f.readRelocSection(i, sh)
		if err != nil {
			return nil, err
		}
		out = append(out, relocs...)
	}
	return out, nil
}

func (f *File) readRelocSection(i int, sh SectionHeader) ([]Reloc, error) {
	rela := sh.Type == SHT_RELA
	var entsize uint64
	switch {
	case f.is64 && rela:
		entsize = 24
	case f.is64:
		entsize = 16
	case rela:
		entsize = 12
	default:
		entsize = 8
	}
	align := uint64(4)
	if f.is64 {
		align = 8
	}
	if sh.Entsize != 0 && sh.Entsize < entsize {
		return nil, fmt.Errorf("elf: relocation entry size %d smaller than %d", sh.Entsize, entsize)
	}
	stride := sh.Entsize
	if stride == 0 {
		stride = entsize
	}
	tv, err := f.view.Sub(sh.Offset, sh.Size)
	if err != nil {
		return nil, fmt.Errorf("elf: relocation section %d: %w", i, err)
	}

	count := sh.Size / stride
	out := make([]Reloc, count)
	for j := uint64(0); j < count; j++ {
		v, err := tv.Struct(j*stride, entsize, align)
		if err != nil {
			return nil, fmt.Errorf("elf: relocation %d in section %d: %w", j, i, err)
		}
		c := pod.NewCursor(v)
		r := &out[j]
		r.HasAddend = rela
		r.Off, _ = c.Word(f.is64)
		if f.is64 {
			info, _ := c.U64()
			r.SymIndex = uint32(info >> 32)
			r.Type = uint32(info)
			if rela {
				r.Addend, _ = c.I64()
			}
		} else {
			info, _ := c.U32()
			r.SymIndex = info >> 8
			r.Type = info & 0xff
			if rela {
				a, _ := c.I32()
				r.Addend = int64(a)
			}
		}
	}
	return out, nil
}

// A Group is one decoded COMDAT section group: the signature symbol
// name and the member section indices.
type Group struct {
	Signature string
	Flags     uint32
	Members   []uint32
}

// Groups returns every SHT_GROUP section's decoded contents. Member
// indices are validated against the section count.
func (f *File) Groups() ([]Group, error) {
	var out []Group
	for i := 0; i < f.NumSections(); i++ {
		sh, err := f.rawSectionHeader(i)
		if err != nil {
			return nil, err
		}
		if sh.Type != SHT_GROUP {
			continue
		}
		g, err := f.readGroup(i, sh)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *File) readGroup(i int, sh SectionHeader) (Group, error) {
	var g Group
	v, err := f.view.Sub(sh.Offset, sh.Size)
	if err != nil {
		return g, fmt.Errorf("elf: group section %d: %w", i, err)
	}
	if v.Len() < 4 || v.Len()%4 != 0 {
		return g, fmt.Errorf("elf: group section %d has invalid size %d", i, v.Len())
	}
	g.Flags, _ = v.U32(0)
	g.Members = make([]uint32, v.Len()/4-1)
	for j := range g.Members {
		m, _ := v.U32(uint64(j+1) * 4)
		if uint64(m) >= f.shnum {
			return g, fmt.Errorf("elf: group section %d member %d out of range (%d sections)", i, m, f.shnum)
		}
		g.Members[j] = m
	}

	// The signature is the name of symbol sh_info in the symbol table
	// named by sh_link.
	symtab, err := f.rawSectionHeader(int(sh.Link))
	if err != nil {
		return g, fmt.Errorf("elf: group section %d symbol table: %w", i, err)
	}
	entsize := uint64(symSize32)
	if f.is64 {
		entsize = symSize64
	}
	stride := symtab.Entsize
	if stride == 0 {
		stride = entsize
	}
	if stride == 0 || uint64(sh.Info) >= symtab.Size/stride {
		return g, fmt.Errorf("elf: group section %d signature symbol %d out of range", i, sh.Info)
	}
	sv, err := f.view.Sub(symtab.Offset+uint64(sh.Info)*stride, entsize)
	if err != nil {
		return g, fmt.Errorf("elf: group signature symbol: %w", err)
	}
	nameIndex, _ := sv.U32(0)
	strtab, err := f.stringTable(symtab.Link)
	if err != nil {
		return g, err
	}
	if nameIndex != 0 {
		g.Signature, err = strtab.CString(uint64(nameIndex))
		if err != nil {
			return g, fmt.Errorf("elf: group signature name: %w", err)
		}
	}
	return g, nil
}
