// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import (
	"strings"

	"github.com/aclements/go-objfile/macho"
)

func machoMachine(c macho.CPU) Machine {
	switch c {
	case macho.CPU386:
		return MachineI386
	case macho.CPUAmd64:
		return MachineX86_64
	case macho.CPUArm:
		return MachineArm
	case macho.CPUArm64:
		return MachineArm64
	case macho.CPUPpc:
		return MachinePpc
	case macho.CPUPpc64:
		return MachinePpc64
	}
	return MachineUnknown
}

func machoSectionKind(s *macho.Section) SectionKind {
	switch {
	case s.Segment == "__DWARF" || strings.HasPrefix(s.Name, "__debug"):
		return SectionDebug
	case s.Flags&macho.SectionTypeMask == macho.SZerofill:
		return SectionBSS
	case s.Flags&macho.SAttrPureInstructions != 0 || s.Flags&macho.SAttrSomeInstructions != 0:
		return SectionText
	case s.Segment == "__TEXT":
		return SectionROData
	case s.Segment == "__DATA":
		return SectionData
	}
	return SectionOther
}

func (a *Any) machoSegments() ([]Segment, error) {
	segs := a.macho.Segments()
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = Segment{
			Name:   s.Name,
			Addr:   s.Addr,
			Size:   s.Memsz,
			Offset: s.Offset,
			Filesz: s.Filesz,
			Flags:  s.Initprot,
		}
	}
	return out, nil
}

func (a *Any) machoSection(i SectionIndex) (Section, error) {
	s, err := a.macho.Section(int(i))
	if err != nil {
		return Section{}, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: len(a.macho.Sections())}
	}
	return Section{
		Index:   i,
		Name:    s.Name,
		Segment: s.Segment,
		Addr:    s.Addr,
		Size:    s.Size,
		Align:   uint64(1) << s.Align,
		Kind:    machoSectionKind(&s),
		Flags:   uint64(s.Flags),
	}, nil
}

func (a *Any) machoSymbols() ([]Symbol, error) {
	syms, err := a.macho.Symbols()
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
		u.Section = SectionUndefined
		if s.IsStab() {
			u.Debug = true
			if s.Sect != macho.NoSect {
				u.Section = SectionIndex(s.Sect)
			}
			continue
		}
		if s.IsExternal() {
			u.Binding = BindGlobal
		}
		switch s.Type & macho.NType {
		case macho.NAbs:
			u.Section = SectionAbsolute
		case macho.NSect:
			u.Section = SectionIndex(s.Sect)
		}
	}
	return out, nil
}

func (a *Any) machoRelocations(i SectionIndex) ([]Reloc, error) {
	relocs, err := a.macho.Relocations(int(i))
	if err != nil {
		return nil, err
	}
	out := make([]Reloc, len(relocs))
	for j, r := range relocs {
		out[j] = Reloc{
			Offset: uint64(r.Addr),
			Symbol: SymbolIndex(r.Symbolnum),
			Type:   uint32(r.Type),
			PCRel:  r.Pcrel,
			Size:   r.Len,
			Extern: r.Extern,
		}
	}
	return out, nil
}
