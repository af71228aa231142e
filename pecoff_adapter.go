// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import "github.com/aclements/go-objfile/pecoff"

func peMachine(m pecoff.Machine) Machine {
	switch m {
	case pecoff.IMAGE_FILE_MACHINE_I386:
		return MachineI386
	case pecoff.IMAGE_FILE_MACHINE_AMD64:
		return MachineX86_64
	case pecoff.IMAGE_FILE_MACHINE_ARM, pecoff.IMAGE_FILE_MACHINE_ARMNT:
		return MachineArm
	case pecoff.IMAGE_FILE_MACHINE_ARM64:
		return MachineArm64
	case pecoff.IMAGE_FILE_MACHINE_RISCV64:
		return MachineRiscv64
	}
	return MachineUnknown
}

func peSectionKind(sh *pecoff.SectionHeader) SectionKind {
	switch {
	case sh.Characteristics&pecoff.IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0:
		return SectionBSS
	case sh.Characteristics&pecoff.IMAGE_SCN_CNT_CODE != 0:
		return SectionText
	case sh.Characteristics&pecoff.IMAGE_SCN_MEM_DISCARDABLE != 0:
		return SectionDebug
	case sh.Characteristics&pecoff.IMAGE_SCN_CNT_INITIALIZED_DATA != 0:
		if sh.Characteristics&pecoff.IMAGE_SCN_MEM_WRITE != 0 {
			return SectionData
		}
		return SectionROData
	}
	return SectionOther
}

func (a *Any) peSection(i SectionIndex) (Section, error) {
	sh, err := a.pe.Section(int(i))
	if err != nil {
		return Section{}, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: len(a.pe.Sections())}
	}
	size := uint64(sh.Size)
	if a.pe.IsPE && sh.VirtualSize != 0 && uint64(sh.VirtualSize) < size {
		// Raw data is commonly padded past the logical size in images.
		size = uint64(sh.VirtualSize)
	}
	return Section{
		Index: i,
		Name:  sh.Name,
		Addr:  a.pe.ImageBase + uint64(sh.VirtualAddress),
		Size:  size,
		Kind:  peSectionKind(&sh),
		Flags: uint64(sh.Characteristics),
	}, nil
}

func (a *Any) peSymbols() ([]Symbol, error) {
	syms, err := a.pe.Symbols()
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, len(syms))
	for i := range syms {
		s := &syms[i]
		u := &out[i]
		u.Index = SymbolIndex(s.Index)
		u.Name = s.Name
		u.Value = uint64(s.Value)

		switch {
		case s.SectionNumber == pecoff.IMAGE_SYM_UNDEFINED:
			if s.StorageClass == pecoff.IMAGE_SYM_CLASS_EXTERNAL && s.Value != 0 {
				// An external with no section and a nonzero value is
				// a common block; the value is its size.
				u.Section = SectionCommon
				u.Kind = SymCommon
				u.Size = uint64(s.Value)
			} else {
				u.Section = SectionUndefined
			}
		case s.SectionNumber == pecoff.IMAGE_SYM_ABSOLUTE:
			u.Section = SectionAbsolute
		case s.SectionNumber == pecoff.IMAGE_SYM_DEBUG:
			u.Section = SectionUndefined
			u.Debug = true
		default:
			u.Section = SectionIndex(s.SectionNumber)
		}

		if s.StorageClass == pecoff.IMAGE_SYM_CLASS_EXTERNAL {
			u.Binding = BindGlobal
		}
		switch s.StorageClass {
		case pecoff.IMAGE_SYM_CLASS_FILE:
			u.Kind = SymFile
			u.Debug = true
		case pecoff.IMAGE_SYM_CLASS_STATIC:
			if s.NumAux > 0 && s.Value == 0 {
				u.Kind = SymSection
			}
		case pecoff.IMAGE_SYM_CLASS_FUNCTION:
			u.Kind = SymFunc
		}
		// The complex-type function bit (DTYPE_FUNCTION << 4).
		if s.Type&0xf0 == 0x20 {
			u.Kind = SymFunc
		}
	}
	return out, nil
}

func (a *Any) peRelocations(i SectionIndex) ([]Reloc, error) {
	relocs, err := a.pe.Relocations(int(i))
	if err != nil {
		return nil, err
	}
	out := make([]Reloc, len(relocs))
	for j, r := range relocs {
		out[j] = Reloc{
			Offset: uint64(r.VirtualAddress),
			Symbol: SymbolIndex(r.SymbolTableIndex),
			Type:   uint32(r.Type),
			Extern: true,
		}
	}
	return out, nil
}

func (a *Any) peComdatGroups() ([]ComdatGroup, error) {
	comdats, err := a.pe.Comdats()
	if err != nil {
		return nil, err
	}
	out := make([]ComdatGroup, len(comdats))
	for i, c := range comdats {
		out[i] = ComdatGroup{
			Signature: c.Name,
			Selection: uint32(c.Selection),
			Sections:  []SectionIndex{SectionIndex(c.SectionNumber)},
		}
	}
	return out, nil
}
