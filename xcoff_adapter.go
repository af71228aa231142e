// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import "github.com/aclements/go-objfile/xcoff"

func xcoffSectionKind(sh *xcoff.SectionHeader) SectionKind {
	switch {
	case sh.Type()&xcoff.STYP_TEXT != 0:
		return SectionText
	case sh.Type()&xcoff.STYP_DATA != 0:
		return SectionData
	case sh.Type()&xcoff.STYP_BSS != 0:
		return SectionBSS
	case sh.Type()&(xcoff.STYP_DEBUG|xcoff.STYP_DWARF) != 0:
		return SectionDebug
	}
	return SectionOther
}

func (a *Any) xcoffSection(i SectionIndex) (Section, error) {
	sh, err := a.xcoff.Section(int(i))
	if err != nil {
		return Section{}, &InvalidIndexError{Kind: "section", Index: uint32(i), Num: len(a.xcoff.Sections())}
	}
	return Section{
		Index: i,
		Name:  sh.Name,
		Addr:  sh.VAddr,
		Size:  sh.Size,
		Kind:  xcoffSectionKind(&sh),
		Flags: uint64(sh.Flags),
	}, nil
}

func (a *Any) xcoffSymbols() ([]Symbol, error) {
	syms, err := a.xcoff.Symbols()
	if err != nil {
		return nil, err
	}
	out := make([]Symbol, len(syms))
	for i := range syms {
		s := &syms[i]
		u := &out[i]
		u.Index = SymbolIndex(s.Index)
		u.Name = s.Name
		u.Value = s.Value
		u.Size = s.SectionLength

		switch s.SectionNumber {
		case xcoff.N_UNDEF:
			u.Section = SectionUndefined
			if s.CsectType == xcoff.XTY_CM {
				u.Section = SectionCommon
				u.Kind = SymCommon
			}
		case xcoff.N_ABS:
			u.Section = SectionAbsolute
		case xcoff.N_DEBUG:
			u.Section = SectionUndefined
			u.Debug = true
		default:
			u.Section = SectionIndex(s.SectionNumber)
		}

		switch s.StorageClass {
		case xcoff.C_EXT:
			u.Binding = BindGlobal
		case xcoff.C_WEAKEXT:
			u.Binding = BindWeak
		case xcoff.C_FILE:
			u.Kind = SymFile
			u.Debug = true
		case xcoff.C_DWARF, xcoff.C_BINCL, xcoff.C_EINCL, xcoff.C_FCN:
			u.Debug = true
		}
		if u.Kind == SymOther {
			switch {
			case s.IsFunction():
				u.Kind = SymFunc
			case s.CsectType == xcoff.XTY_SD:
				u.Kind = SymData
			}
		}
	}
	return out, nil
}

func (a *Any) xcoffRelocations(i SectionIndex) ([]Reloc, error) {
	relocs, err := a.xcoff.Relocations(int(i))
	if err != nil {
		return nil, err
	}
	out := make([]Reloc, len(relocs))
	for j, r := range relocs {
		out[j] = Reloc{
			Offset: r.VAddr,
			Symbol: SymbolIndex(r.SymbolIndex),
			Type:   uint32(r.Type),
			Size:   r.Size,
			Extern: true,
		}
	}
	return out, nil
}
