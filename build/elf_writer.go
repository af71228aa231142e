// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	objfile "github.com/aclements/go-objfile"
	"github.com/aclements/go-objfile/elf"
	"github.com/aclements/go-objfile/pod"
)

func elfMachineValue(m objfile.Machine) elf.Machine {
	switch m {
	case objfile.MachineI386:
		return elf.EM_386
	case objfile.MachineX86_64:
		return elf.EM_X86_64
	case objfile.MachineArm:
		return elf.EM_ARM
	case objfile.MachineArm64:
		return elf.EM_AARCH64
	case objfile.MachinePpc:
		return elf.EM_PPC
	case objfile.MachinePpc64:
		return elf.EM_PPC64
	case objfile.MachineRiscv64:
		return elf.EM_RISCV
	case objfile.MachineMips:
		return elf.EM_MIPS
	case objfile.MachineS390:
		return elf.EM_S390
	case objfile.MachineLoong64:
		return elf.EM_LOONG
	}
	return elf.EM_NONE
}

func elfSectionLayout(k objfile.SectionKind) (typ elf.SectionType, flags uint64) {
	switch k {
	case objfile.SectionText:
		return elf.SHT_PROGBITS, elf.SHF_ALLOC | elf.SHF_EXECINSTR
	case objfile.SectionData:
		return elf.SHT_PROGBITS, elf.SHF_ALLOC | elf.SHF_WRITE
	case objfile.SectionROData:
		return elf.SHT_PROGBITS, elf.SHF_ALLOC
	case objfile.SectionBSS:
		return elf.SHT_NOBITS, elf.SHF_ALLOC | elf.SHF_WRITE
	}
	return elf.SHT_PROGBITS, 0
}

func elfSymType(k objfile.SymbolKind) uint8 {
	switch k {
	case objfile.SymFunc:
		return 2 // STT_FUNC
	case objfile.SymData, objfile.SymCommon:
		return 1 // STT_OBJECT
	case objfile.SymSection:
		return 3 // STT_SECTION
	case objfile.SymFile:
		return 4 // STT_FILE
	}
	return 0
}

// elfShdr is one pending section header table entry.
type elfShdr struct {
	name    uint32
	typ     elf.SectionType
	flags   uint64
	addr    uint64
	off     uint64
	size    uint64
	link    uint32
	info    uint32
	align   uint64
	entsize uint64
}

func (o *Object) emitELF() ([]byte, error) {
	is64 := o.is64()
	w := newWbuf(o.endian)
	shstr := newStrtab()
	str := newStrtab()

	wordAlign := 4
	ehdrSize, shdrSize := 52, 40
	symSize, relaSize := uint64(16), uint64(12)
	if is64 {
		wordAlign = 8
		ehdrSize, shdrSize = 64, 64
		symSize, relaSize = 24, 24
	}

	// Symbol emission order: the null entry, locals, then globals and
	// weaks, as the format mandates. emitIdx maps accumulation indices
	// to emitted ones.
	var order []int
	for i := range o.symbols {
		if o.symbols[i].Binding == objfile.BindLocal {
			order = append(order, i)
		}
	}
	nlocal := uint32(len(order)) + 1
	for i := range o.symbols {
		if o.symbols[i].Binding != objfile.BindLocal {
			order = append(order, i)
		}
	}
	emitIdx := make([]uint32, len(o.symbols))
	for n, i := range order {
		emitIdx[i] = uint32(n) + 1
	}

	// Sections that belong to a COMDAT group carry SHF_GROUP.
	grouped := make([]bool, len(o.sections)+1)
	for _, c := range o.comdats {
		for _, m := range c.Sections {
			grouped[m] = true
		}
	}

	// Table indices, all known up front.
	nsec := len(o.sections)
	var withRelocs []int // 1-based targets, accumulation order
	for i := 1; i <= nsec; i++ {
		if len(o.sectionRelocs(i)) > 0 {
			withRelocs = append(withRelocs, i)
		}
	}
	groupBase := nsec + 1
	relaBase := groupBase + len(o.comdats)
	symtabIdx := uint32(relaBase + len(withRelocs))
	strtabIdx := symtabIdx + 1
	shstrtabIdx := strtabIdx + 1
	shnum := int(shstrtabIdx) + 1

	// Ehdr; e_shoff is patched once the body layout is known.
	w.bytes([]byte{0x7f, 'E', 'L', 'F'})
	class := uint8(1)
	if is64 {
		class = 2
	}
	w.u8(class)
	if o.endian == pod.Big {
		w.u8(2)
	} else {
		w.u8(1)
	}
	w.u8(1) // EI_VERSION
	w.bytes(make([]byte, 9))
	w.u16(1) // ET_REL
	w.u16(uint16(elfMachineValue(o.machine)))
	w.u32(1)
	w.word(o.entry, is64)
	w.word(0, is64) // e_phoff
	shoffPatch := w.len()
	w.word(0, is64)
	w.u32(0) // e_flags
	w.u16(uint16(ehdrSize))
	w.u16(0)
	w.u16(0)
	w.u16(uint16(shdrSize))
	w.u16(uint16(shnum))
	w.u16(uint16(shstrtabIdx))

	shdrs := make([]elfShdr, 1, shnum) // index 0 is the null entry

	// User section bodies.
	for i := range o.sections {
		s := &o.sections[i]
		typ, flags := elfSectionLayout(s.Kind)
		if grouped[i+1] {
			flags |= elf.SHF_GROUP
		}
		align := s.Align
		if align == 0 {
			align = 1
		}
		w.align(int(align))
		sh := elfShdr{
			name:  shstr.add(s.Name),
			typ:   typ,
			flags: flags,
			addr:  s.Addr,
			off:   uint64(w.len()),
			size:  s.Size,
			align: align,
		}
		if typ != elf.SHT_NOBITS {
			w.bytes(s.data)
		}
		shdrs = append(shdrs, sh)
	}

	// COMDAT group sections.
	for _, c := range o.comdats {
		w.align(4)
		off := w.len()
		flags := c.Selection
		if flags == 0 {
			flags = elf.GRP_COMDAT
		}
		w.u32(flags)
		for _, m := range c.Sections {
			w.u32(uint32(m))
		}
		shdrs = append(shdrs, elfShdr{
			name:    shstr.add(".group"),
			typ:     elf.SHT_GROUP,
			off:     uint64(off),
			size:    uint64(w.len() - off),
			link:    symtabIdx,
			info:    emitIdx[c.Symbol],
			align:   4,
			entsize: 4,
		})
	}

	// Relocation sections, RELA encoding in both classes.
	for _, target := range withRelocs {
		w.align(wordAlign)
		off := w.len()
		for _, r := range o.sectionRelocs(target) {
			w.word(r.Offset, is64)
			sym := uint64(emitIdx[r.Symbol])
			if is64 {
				w.u64(sym<<32 | uint64(r.Type))
				w.u64(uint64(r.Addend))
			} else {
				w.u32(uint32(sym<<8 | uint64(r.Type&0xff)))
				w.u32(uint32(int32(r.Addend)))
			}
		}
		shdrs = append(shdrs, elfShdr{
			name:    shstr.add(".rela" + o.sections[target-1].Name),
			typ:     elf.SHT_RELA,
			off:     uint64(off),
			size:    uint64(w.len() - off),
			link:    symtabIdx,
			info:    uint32(target),
			align:   uint64(wordAlign),
			entsize: relaSize,
		})
	}

	// Symbol table.
	w.align(wordAlign)
	symOff := w.len()
	w.bytes(make([]byte, symSize)) // null symbol
	for _, i := range order {
		s := &o.symbols[i]
		nameOff := str.add(s.Name)
		info := uint8(s.Binding)<<4 | elfSymType(s.Kind)
		shndx := uint16(s.Section)
		switch s.Section {
		case objfile.SectionUndefined:
			shndx = elf.SHN_UNDEF
		case objfile.SectionAbsolute:
			shndx = elf.SHN_ABS
		case objfile.SectionCommon:
			shndx = elf.SHN_COMMON
		}
		if is64 {
			w.u32(nameOff)
			w.u8(info)
			w.u8(0)
			w.u16(shndx)
			w.u64(s.Value)
			w.u64(s.Size)
		} else {
			w.u32(nameOff)
			w.u32(uint32(s.Value))
			w.u32(uint32(s.Size))
			w.u8(info)
			w.u8(0)
			w.u16(shndx)
		}
	}
	shdrs = append(shdrs, elfShdr{
		name:    shstr.add(".symtab"),
		typ:     elf.SHT_SYMTAB,
		off:     uint64(symOff),
		size:    uint64(w.len() - symOff),
		link:    strtabIdx,
		info:    nlocal,
		align:   uint64(wordAlign),
		entsize: symSize,
	})

	strOff := w.len()
	w.bytes(str.bytes())
	shdrs = append(shdrs, elfShdr{
		name:  shstr.add(".strtab"),
		typ:   elf.SHT_STRTAB,
		off:   uint64(strOff),
		size:  uint64(len(str.bytes())),
		align: 1,
	})

	shstrName := shstr.add(".shstrtab")
	shstrOff := w.len()
	w.bytes(shstr.bytes())
	shdrs = append(shdrs, elfShdr{
		name:  shstrName,
		typ:   elf.SHT_STRTAB,
		off:   uint64(shstrOff),
		size:  uint64(len(shstr.bytes())),
		align: 1,
	})

	// Section header table.
	w.align(wordAlign)
	if is64 {
		w.patchU64(shoffPatch, uint64(w.len()))
	} else {
		w.patchU32(shoffPatch, uint32(w.len()))
	}
	for _, sh := range shdrs {
		w.u32(sh.name)
		w.u32(uint32(sh.typ))
		w.word(sh.flags, is64)
		w.word(sh.addr, is64)
		w.word(sh.off, is64)
		w.word(sh.size, is64)
		w.u32(sh.link)
		w.u32(sh.info)
		w.word(sh.align, is64)
		w.word(sh.entsize, is64)
	}
	return w.b, nil
}
