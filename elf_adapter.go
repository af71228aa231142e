// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import (
	"strings"

	"github.com/aclements/go-objfile/elf"
)

func elfMachine(m elf.Machine) Machine {
	switch m {
	case elf.EM_386:
		return MachineI386
	case elf.EM_X86_64:
		return MachineX86_64
	case elf.EM_ARM:
		return MachineArm
	case elf.EM_AARCH64:
		return MachineArm64
	case elf.EM_PPC:
		return MachinePpc
	case elf.EM_PPC64:
		return MachinePpc64
	case elf.EM_RISCV:
		return MachineRiscv64
	case elf.EM_MIPS:
		return MachineMips
	case elf.EM_S390:
		return MachineS390
	case elf.EM_LOONG:
		return MachineLoong64
	}
	return MachineUnknown
}

func elfSectionKind(sh *elf.SectionHeader) SectionKind {
	if strings.HasPrefix(sh.Name, ".debug") || strings.HasPrefix(sh.Name, ".zdebug") {
		return SectionDebug
	}
	switch {
	case sh.Type == elf.SHT_NOBITS && sh.Flags&elf.SHF_ALLOC != 0:
		return SectionBSS
	case sh.Flags&elf.SHF_EXECINSTR != 0:
		return SectionText
	case sh.Flags&elf.SHF_ALLOC != 0 && sh.Flags&elf.SHF_WRITE != 0:
		return SectionData
	case sh.Flags&elf.SHF_ALLOC != 0:
		return SectionROData
	}
	return SectionOther
}

func (a *Any) elfSegments() ([]Segment, error) {
	progs, err := a.elf.Segments()
	if err != nil {
		return nil, err
	}
	out := make([]Segment, len(progs))
	for i, p := range progs {
		out[i] = Segment{
			Addr:   p.Vaddr,
			Size:   p.Memsz,
			Offset: p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		}
	}
	return out, nil
}

func (a *Any) elfSection(i SectionIndex) (Section, error) {
	n := a.elf.NumSections()
	if int(i) >= n {
		return Section{}, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: n}
	}
	sh, err := a.elf.SectionHeader(int(i))
	if err != nil {
		return Section{}, err
	}
	return Section{
		Index: i,
		Name:  sh.Name,
		Addr:  sh.Addr,
		Size:  sh.Size,
		Align: sh.Addralign,
		Kind:  elfSectionKind(&sh),
		Flags: sh.Flags,
	}, nil
}

func (a *Any) elfSymbols() ([]Symbol, error) {
	syms, err := a.elf.Symbols()
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, len(syms))
	for i := range syms {
		s := &syms[i]
		u := &out[i]
		u.Index = SymbolIndex(i)
		u.Name = s.Name
		u.Value = s.Value
		u.Size = s.Size

		switch s.Shndx {
		case elf.SHN_UNDEF:
			u.Section = SectionUndefined
		case elf.SHN_ABS:
			u.Section = SectionAbsolute
		case elf.SHN_COMMON:
			u.Section = SectionCommon
		default:
			u.Section = SectionIndex(s.Shndx)
		}

		switch s.Bind() {
		case elf.STB_GLOBAL:
			u.Binding = BindGlobal
		case elf.STB_WEAK:
			u.Binding = BindWeak
		}

		switch s.Type() {
		case elf.STT_FUNC:
			u.Kind = SymFunc
		case elf.STT_OBJECT, elf.STT_TLS:
			u.Kind = SymData
		case elf.STT_SECTION:
			u.Kind = SymSection
		case elf.STT_FILE:
			u.Kind = SymFile
		case elf.STT_COMMON:
			u.Kind = SymCommon
		}
		if s.IsCommon() {
			u.Kind = SymCommon
		}
	}
	return out, nil
}

func (a *Any) elfRelocations(i SectionIndex) ([]Reloc, error) {
	relocs, err := a.elf.Relocations(int(i))
	if err != nil {
		return nil, err
	}
	out := make([]Reloc, len(relocs))
	for j, r := range relocs {
		out[j] = Reloc{
			Offset:    r.Off,
			Symbol:    SymbolIndex(r.SymIndex),
			Type:      r.Type,
			Addend:    r.Addend,
			HasAddend: r.HasAddend,
			Extern:    true,
		}
	}
	return out, nil
}

func (a *Any) elfComdatGroups() ([]ComdatGroup, error) {
	groups, err := a.elf.Groups()
	if err != nil {
		return nil, err
	}
	var out []ComdatGroup
	for _, g := range groups {
		if g.Flags&elf.GRP_COMDAT == 0 {
			continue
		}
		cg := ComdatGroup{
			Signature: g.Signature,
			Selection: g.Flags,
			Sections:  make([]SectionIndex, len(g.Members)),
		}
		for j, m := range g.Members {
			cg.Sections[j] = SectionIndex(m)
		}
		out = append(out, cg)
	}
	return out, nil
}
