// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"fmt"

	objfile "github.com/aclements/go-objfile"
	"github.com/aclements/go-objfile/pecoff"
)

func coffMachineValue(m objfile.Machine) pecoff.Machine {
	switch m {
	case objfile.MachineI386:
		return pecoff.IMAGE_FILE_MACHINE_I386
	case objfile.MachineX86_64:
		return pecoff.IMAGE_FILE_MACHINE_AMD64
	case objfile.MachineArm:
		return pecoff.IMAGE_FILE_MACHINE_ARMNT
	case objfile.MachineArm64:
		return pecoff.IMAGE_FILE_MACHINE_ARM64
	case objfile.MachineRiscv64:
		return pecoff.IMAGE_FILE_MACHINE_RISCV64
	}
	return pecoff.IMAGE_FILE_MACHINE_UNKNOWN
}

func coffCharacteristics(k objfile.SectionKind) uint32 {
	switch k {
	case objfile.SectionText:
		return pecoff.IMAGE_SCN_CNT_CODE | pecoff.IMAGE_SCN_MEM_EXECUTE | pecoff.IMAGE_SCN_MEM_READ
	case objfile.SectionData:
		return pecoff.IMAGE_SCN_CNT_INITIALIZED_DATA | pecoff.IMAGE_SCN_MEM_READ | pecoff.IMAGE_SCN_MEM_WRITE
	case objfile.SectionROData:
		return pecoff.IMAGE_SCN_CNT_INITIALIZED_DATA | pecoff.IMAGE_SCN_MEM_READ
	case objfile.SectionBSS:
		return pecoff.IMAGE_SCN_CNT_UNINITIALIZED_DATA | pecoff.IMAGE_SCN_MEM_READ | pecoff.IMAGE_SCN_MEM_WRITE
	case objfile.SectionDebug:
		return pecoff.IMAGE_SCN_CNT_INITIALIZED_DATA | pecoff.IMAGE_SCN_MEM_DISCARDABLE | pecoff.IMAGE_SCN_MEM_READ
	}
	return pecoff.IMAGE_SCN_CNT_INITIALIZED_DATA | pecoff.IMAGE_SCN_MEM_READ
}

const (
	coffHeaderSize  = 20
	coffSectionSize = 40
	coffSymbolSize  = 18
	coffRelocSize   = 10
)

func (o *Object) emitCOFF() ([]byte, error) {
	w := newWbuf(o.endian)
	str := newSizedStrtab()

	nsec := len(o.sections)

	// COMDAT groups become a section-definition symbol plus aux for
	// each group's first member; those records lead the symbol table,
	// so user symbol i lands at raw index prefix+i.
	type comdatDef struct {
		section   int // 1-based
		selection uint8
	}
	var defs []comdatDef
	comdatSections := make(map[int]bool)
	for _, c := range o.comdats {
		if len(c.Sections) == 0 {
			return nil, fmt.Errorf("build: COFF comdat with no member sections")
		}
		defs = append(defs, comdatDef{int(c.Sections[0]), uint8(c.Selection)})
		for _, m := range c.Sections {
			comdatSections[int(m)] = true
		}
	}
	prefix := uint32(2 * len(defs))
	nsyms := prefix + uint32(len(o.symbols))

	// Lay out the file arithmetically so the headers can be written
	// before the bodies.
	off := uint32(coffHeaderSize + nsec*coffSectionSize)
	dataOff := make([]uint32, nsec+1)
	relOff := make([]uint32, nsec+1)
	nrel := make([]uint16, nsec+1)
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if s.Kind != objfile.SectionBSS && len(s.data) > 0 {
			off = alignU32(off, 4)
			dataOff[i] = off
			off += uint32(len(s.data))
		}
	}
	for i := 1; i <= nsec; i++ {
		relocs := o.sectionRelocs(i)
		if len(relocs) == 0 {
			continue
		}
		if len(relocs) > 0xfffe {
			return nil, fmt.Errorf("build: section %q has too many COFF relocations", o.sections[i-1].Name)
		}
		relOff[i] = off
		nrel[i] = uint16(len(relocs))
		off += uint32(len(relocs)) * coffRelocSize
	}
	symOff := off

	// File header.
	w.u16(uint16(coffMachineValue(o.machine)))
	w.u16(uint16(nsec))
	w.u32(0) // timestamp, fixed for determinism
	w.u32(symOff)
	w.u32(nsyms)
	w.u16(0)
	w.u16(0)

	// Section headers.
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if len(s.Name) > 8 {
			w.name(fmt.Sprintf("/%d", str.add(s.Name)), 8)
		} else {
			w.name(s.Name, 8)
		}
		chars := coffCharacteristics(s.Kind)
		if comdatSections[i] {
			chars |= pecoff.IMAGE_SCN_LNK_COMDAT
		}
		w.u32(uint32(s.Size)) // VirtualSize
		w.u32(uint32(s.Addr))
		w.u32(uint32(s.Size))
		w.u32(dataOff[i])
		w.u32(relOff[i])
		w.u32(0)
		w.u16(nrel[i])
		w.u16(0)
		w.u32(chars)
	}

	// Bodies.
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if s.Kind != objfile.SectionBSS && len(s.data) > 0 {
			w.align(4)
			w.bytes(s.data)
		}
	}

	// Relocations.
	for i := 1; i <= nsec; i++ {
		for _, r := range o.sectionRelocs(i) {
			w.u32(uint32(r.Offset))
			w.u32(prefix + uint32(r.Symbol))
			w.u16(uint16(r.Type))
		}
	}

	// Symbol table: comdat section definitions, then user symbols.
	putName := func(name string) {
		if len(name) > 8 {
			w.u32(0)
			w.u32(str.add(name))
		} else {
			w.name(name, 8)
		}
	}
	for _, d := range defs {
		s := &o.sections[d.section-1]
		putName(s.Name)
		w.u32(0)
		w.u16(uint16(d.section))
		w.u16(0)
		w.u8(pecoff.IMAGE_SYM_CLASS_STATIC)
		w.u8(1)
		// Aux section definition.
		w.u32(uint32(s.Size))
		w.u16(nrel[d.section])
		w.u16(0)
		w.u32(0) // checksum
		w.u16(0)
		w.u8(d.selection)
		w.bytes(make([]byte, 3))
	}
	for i := range o.symbols {
		s := &o.symbols[i]
		putName(s.Name)
		value := uint32(s.Value)
		secnum := int16(s.Section)
		switch s.Section {
		case objfile.SectionUndefined:
			secnum = pecoff.IMAGE_SYM_UNDEFINED
		case objfile.SectionAbsolute:
			secnum = pecoff.IMAGE_SYM_ABSOLUTE
		case objfile.SectionCommon:
			// A common block is an undefined external whose value is
			// its size.
			secnum = pecoff.IMAGE_SYM_UNDEFINED
			value = uint32(s.Size)
		}
		w.u32(value)
		w.u16(uint16(secnum))
		typ := uint16(0)
		if s.Kind == objfile.SymFunc {
			typ = 0x20
		}
		w.u16(typ)
		class := pecoff.IMAGE_SYM_CLASS_STATIC
		if s.Binding != objfile.BindLocal {
			class = pecoff.IMAGE_SYM_CLASS_EXTERNAL
		}
		if s.Kind == objfile.SymFile {
			class = pecoff.IMAGE_SYM_CLASS_FILE
		}
		w.u8(class)
		w.u8(0)
	}

	// String table.
	w.u32(uint32(str.size()))
	w.bytes(str.bytes())
	return w.b, nil
}

func alignU32(v, n uint32) uint32 {
	if n < 2 {
		return v
	}
	if r := v % n; r != 0 {
		v += n - r
	}
	return v
}
