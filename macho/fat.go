// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package macho

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aclements/go-objfile/pod"
)

// ErrNotFat reports that the buffer does not start with a fat
// (universal) binary magic.
var ErrNotFat = errors.New("not a fat Mach-O file")

// A FatArch is one architecture slice of a fat binary. Data is a
// sub-slice of the fat file's buffer, independently parseable with
// NewFile.
type FatArch struct {
	CPU    CPU
	SubCPU uint32
	Offset uint32
	Size   uint32
	Align  uint32 // log2
	Data   []byte
}

// MatchFat reports whether data starts with the fat binary magic.
func MatchFat(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == MagicFat
}

// ReadFat parses the fat header in data and returns the architecture
// slices. The fat header is always big-endian regardless of the
// member architectures.
func ReadFat(data []byte) ([]FatArch, error) {
	if !MatchFat(data) {
		return nil, ErrNotFat
	}
	v := pod.NewView(data, pod.Big)
	narch, err := v.U32(4)
	if err != nil {
		return nil, fmt.Errorf("macho: fat header: %w", err)
	}
	const fatArchSize = 20
	if uint64(narch) > (v.Len()-8)/fatArchSize {
		return nil, fmt.Errorf("macho: %d fat arch entries exceed file size: %w", narch, pod.ErrOutOfBounds)
	}
	arches := make([]FatArch, narch)
	for i := range arches {
		av, err := v.Sub(8+uint64(i)*fatArchSize, fatArchSize)
		if err != nil {
			return nil, fmt.Errorf("macho: fat arch %d: %w", i, err)
		}
		c := pod.NewCursor(av)
		a := &arches[i]
		cpu, _ := c.U32()
		a.CPU = CPU(cpu)
		a.SubCPU, _ = c.U32()
		a.Offset, _ = c.U32()
		a.Size, _ = c.U32()
		a.Align, _ = c.U32()
		a.Data, err = v.Bytes(uint64(a.Offset), uint64(a.Size))
		if err != nil {
			return nil, fmt.Errorf("macho: fat arch %d member: %w", i, err)
		}
	}
	return arches, nil
}
