// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfile

import (
	"fmt"

	"github.com/aclements/go-objfile/ar"
	"github.com/aclements/go-objfile/macho"
)

// An ArchiveMember is one object-bearing member of an ar archive. Its
// Data is a sub-slice of the archive buffer and can be handed to Open.
type ArchiveMember struct {
	Name string
	Data []byte
}

// OpenArchive parses an ar archive and returns its members in on-disk
// order, symbol-table members excluded. Member payloads borrow data.
func OpenArchive(data []byte) ([]ArchiveMember, error) {
	a, err := ar.Parse(data)
	if err != nil {
		return nil, err
	}
	members := a.Members()
	out := make([]ArchiveMember, len(members))
	for i, m := range members {
		out[i] = ArchiveMember{Name: m.Name, Data: m.Data}
	}
	return out, nil
}

// A FatMember is one architecture slice of a fat Mach-O binary.
type FatMember struct {
	Machine Machine
	File    *Any
}

// OpenFat parses a fat (universal) Mach-O binary and opens each
// architecture member.
func OpenFat(data []byte, opts *Options) ([]FatMember, error) {
	arches, err := macho.ReadFat(data)
	if err != nil {
		return nil, err
	}
	out := make([]FatMember, len(arches))
	for i, arch := range arches {
		f, err := Open(arch.Data, opts)
		if err != nil {
			return nil, fmt.Errorf("objfile: fat member %d (%v): %w", i, arch.CPU, err)
		}
		out[i] = FatMember{Machine: machoMachine(arch.CPU), File: f}
	}
	return out, nil
}
