// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import "sort"

// A SymbolTable facilitates fast symbol lookup by address and name,
// independent of the source format.
type SymbolTable struct {
	addr []Symbol
	name map[string]int
}

// NewSymbolTable builds a table from syms. Undefined and debugging
// entries are dropped; the rest are held in address order. The input
// slice is not modified.
func NewSymbolTable(syms []Symbol) *SymbolTable {
	addr := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		if s.IsUndefined() || s.Debug {
			continue
		}
		addr = append(addr, s)
	}
	sort.SliceStable(addr, func(i, j int) bool {
		return addr[i].Value < addr[j].Value
	})

	name := make(map[string]int)
	for i, s := range addr {
		if _, ok := name[s.Name]; !ok {
			name[s.Name] = i
		}
	}
	return &SymbolTable{addr, name}
}

// NewFileSymbolTable builds a table from f's symbol table.
func NewFileSymbolTable(f File) (*SymbolTable, error) {
	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}
	return NewSymbolTable(syms), nil
}

// Syms returns all symbols in address order. The caller must not
// modify the returned slice.
func (t *SymbolTable) Syms() []Symbol { return t.addr }

// Name returns the symbol with the given name.
func (t *SymbolTable) Name(name string) (Symbol, bool) {
	if i, ok := t.name[name]; ok {
		return t.addr[i], true
	}
	return Symbol{}, false
}

// Addr returns the symbol containing addr.
func (t *SymbolTable) Addr(addr uint64) (Symbol, bool) {
	i := sort.Search(len(t.addr), func(i int) bool {
		return addr < t.addr[i].Value
	})
	if i > 0 {
		s := t.addr[i-1]
		if s.Value != 0 && s.Value <= addr && addr < s.Value+s.Size {
			return s, true
		}
	}
	return Symbol{}, false
}

// SymName returns the name and base of the symbol containing addr. It
// returns "", 0 if no symbol contains addr.
func (t *SymbolTable) SymName(addr uint64) (name string, base uint64) {
	if sym, ok := t.Addr(addr); ok {
		return sym.Name, sym.Value
	}
	return "", 0
}
