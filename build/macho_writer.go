// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"fmt"
	"math/bits"

	objfile "github.com/aclements/go-objfile"
	"github.com/aclements/go-objfile/macho"
)

func machoCPUValue(m objfile.Machine) macho.CPU {
	switch m {
	case objfile.MachineI386:
		return macho.CPU386
	case objfile.MachineX86_64:
		return macho.CPUAmd64
	case objfile.MachineArm:
		return macho.CPUArm
	case objfile.MachineArm64:
		return macho.CPUArm64
	case objfile.MachinePpc:
		return macho.CPUPpc
	case objfile.MachinePpc64:
		return macho.CPUPpc64
	}
	return 0
}

// machoPlacement gives the conventional segment name and section flags
// for a section kind.
func machoPlacement(k objfile.SectionKind) (segment string, flags uint32) {
	switch k {
	case objfile.SectionText:
		return "__TEXT", macho.SAttrPureInstructions | macho.SAttrSomeInstructions
	case objfile.SectionROData:
		return "__TEXT", macho.SRegular
	case objfile.SectionData:
		return "__DATA", macho.SRegular
	case objfile.SectionBSS:
		return "__DATA", macho.SZerofill
	case objfile.SectionDebug:
		return "__DWARF", macho.SRegular
	}
	return "__DATA", macho.SRegular
}

const (
	machoHdrSize32    = 28
	machoHdrSize64    = 32
	machoSegCmdSize32 = 56
	machoSegCmdSize64 = 72
	machoSectSize32   = 68
	machoSectSize64   = 80
	machoNlistSize32  = 12
	machoNlistSize64  = 16
	machoSymtabSize   = 24
	machoMainSize     = 24
	machoRelocSize    = 8
)

// emitMachO writes an MH_OBJECT file: one unnamed segment holding
// every section, an LC_SYMTAB, and an LC_MAIN when an entry point was
// set. Section ordinals equal the AddSection indices.
func (o *Object) emitMachO() ([]byte, error) {
	is64 := o.is64()
	w := newWbuf(o.endian)
	str := newStrtab()

	// The relocation_info encoding has no addend field; Mach-O addends
	// live in the relocated bytes themselves.
	for i, r := range o.relocs {
		if r.Addend != 0 {
			return nil, fmt.Errorf("build: relocation %d: Mach-O carries addends in section data, not the relocation", i)
		}
	}

	nsec := len(o.sections)
	hdrSize, segSize, sectSize, nlistSize := machoHdrSize32, machoSegCmdSize32, machoSectSize32, machoNlistSize32
	if is64 {
		hdrSize, segSize, sectSize, nlistSize = machoHdrSize64, machoSegCmdSize64, machoSectSize64, machoNlistSize64
	}
	ncmds := uint32(2)
	sizeofcmds := uint32(segSize + nsec*sectSize + machoSymtabSize)
	if o.hasEntry {
		ncmds++
		sizeofcmds += machoMainSize
	}

	// Lay out the regions after the load commands.
	off := uint32(hdrSize) + sizeofcmds
	dataOff := make([]uint32, nsec+1)
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if s.Kind == objfile.SectionBSS || len(s.data) == 0 {
			continue
		}
		off = alignU32(off, uint32(max(s.Align, 1)))
		dataOff[i] = off
		off += uint32(len(s.data))
	}
	bodiesEnd := off
	relOff := make([]uint32, nsec+1)
	nrel := make([]uint32, nsec+1)
	for i := 1; i <= nsec; i++ {
		relocs := o.sectionRelocs(i)
		if len(relocs) == 0 {
			continue
		}
		off = alignU32(off, 4)
		relOff[i] = off
		nrel[i] = uint32(len(relocs))
		off += uint32(len(relocs)) * machoRelocSize
	}
	off = alignU32(off, uint32(nlistSize))
	symOff := off
	off += uint32(len(o.symbols) * nlistSize)
	strOff := off

	// Header.
	magic := macho.MagicMachO32
	if is64 {
		magic = macho.MagicMachO64
	}
	w.u32(magic)
	w.u32(uint32(machoCPUValue(o.machine)))
	w.u32(0) // cpusubtype
	w.u32(uint32(macho.TypeObj))
	w.u32(ncmds)
	w.u32(sizeofcmds)
	w.u32(0) // flags
	if is64 {
		w.u32(0) // reserved
	}

	// Segment command. The segment spans all section bodies.
	segCmd := macho.LcSegment
	if is64 {
		segCmd = macho.LcSegment64
	}
	w.u32(uint32(segCmd))
	w.u32(uint32(segSize + nsec*sectSize))
	w.name("", 16)
	var vmsize uint64
	for i := range o.sections {
		if end := o.sections[i].Addr + o.sections[i].Size; end > vmsize {
			vmsize = end
		}
	}
	segFileOff := uint64(hdrSize) + uint64(sizeofcmds)
	w.word(0, is64)      // vmaddr
	w.word(vmsize, is64) // vmsize
	w.word(segFileOff, is64)
	w.word(uint64(bodiesEnd)-segFileOff, is64)
	w.u32(7) // maxprot rwx
	w.u32(7) // initprot
	w.u32(uint32(nsec))
	w.u32(0) // segment flags

	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		segname, flags := machoPlacement(s.Kind)
		w.name(s.Name, 16)
		w.name(segname, 16)
		w.word(s.Addr, is64)
		w.word(s.Size, is64)
		w.u32(dataOff[i])
		align := uint32(0)
		if s.Align > 1 {
			align = uint32(bits.Len64(s.Align - 1))
		}
		w.u32(align)
		w.u32(relOff[i])
		w.u32(nrel[i])
		w.u32(flags)
		w.u32(0) // reserved1
		w.u32(0) // reserved2
		if is64 {
			w.u32(0) // reserved3
		}
	}

	// LC_SYMTAB. The string table size is patched once known.
	w.u32(uint32(macho.LcSymtab))
	w.u32(machoSymtabSize)
	w.u32(symOff)
	w.u32(uint32(len(o.symbols)))
	w.u32(strOff)
	strSizePatch := w.len()
	w.u32(0)

	if o.hasEntry {
		w.u32(uint32(macho.LcMain))
		w.u32(machoMainSize)
		w.u64(o.entry)
		w.u64(0) // stacksize
	}

	// Section bodies.
	for i := 1; i <= nsec; i++ {
		s := &o.sections[i-1]
		if s.Kind == objfile.SectionBSS || len(s.data) == 0 {
			continue
		}
		w.align(int(max(s.Align, 1)))
		w.bytes(s.data)
	}

	// Relocations. External against the emitted symbol numbering; the
	// field width mirrors the file class.
	rlen := uint32(2)
	if is64 {
		rlen = 3
	}
	for i := 1; i <= nsec; i++ {
		if nrel[i] == 0 {
			continue
		}
		w.align(4)
		for _, r := range o.sectionRelocs(i) {
			w.u32(uint32(r.Offset))
			info := uint32(r.Symbol)&0x00ffffff |
				rlen<<25 |
				1<<27 | // external
				(r.Type&0xf)<<28
			w.u32(info)
		}
	}

	// Symbol table, in accumulation order.
	w.align(nlistSize)
	for i := range o.symbols {
		s := &o.symbols[i]
		strx := str.add(s.Name)
		typ := macho.NSect
		sect := uint8(s.Section)
		value := s.Value
		switch s.Section {
		case objfile.SectionUndefined:
			typ, sect = macho.NUndf, macho.NoSect
		case objfile.SectionAbsolute:
			typ, sect = macho.NAbs, macho.NoSect
		case objfile.SectionCommon:
			// A common block is an undefined external whose value is
			// its size.
			typ, sect = macho.NUndf, macho.NoSect
			value = s.Size
		}
		if s.Binding != objfile.BindLocal {
			typ |= macho.NExt
		}
		w.u32(strx)
		w.u8(typ)
		w.u8(sect)
		w.u16(0) // n_desc
		w.word(value, is64)
	}

	w.bytes(str.bytes())
	w.patchU32(strSizePatch, uint32(len(str.bytes())))
	return w.b, nil
}
