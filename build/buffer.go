// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"encoding/binary"

	"github.com/aclements/go-objfile/pod"
)

// byteOrder joins the read and append halves of the binary package's
// byte order interfaces, which LittleEndian and BigEndian both
// satisfy.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// A wbuf is an append-only serialization buffer with an explicit byte
// order. All padding is zero fill, so output is deterministic.
type wbuf struct {
	b  []byte
	bo byteOrder
}

func newWbuf(e pod.Endian) *wbuf {
	var bo byteOrder = binary.LittleEndian
	if e == pod.Big {
		bo = binary.BigEndian
	}
	return &wbuf{bo: bo}
}

func (w *wbuf) len() int { return len(w.b) }

func (w *wbuf) bytes(b []byte) { w.b = append(w.b, b...) }

func (w *wbuf) u8(v uint8) { w.b = append(w.b, v) }

func (w *wbuf) u16(v uint16) { w.b = w.bo.AppendUint16(w.b, v) }

func (w *wbuf) u32(v uint32) { w.b = w.bo.AppendUint32(w.b, v) }

func (w *wbuf) u64(v uint64) { w.b = w.bo.AppendUint64(w.b, v) }

// word writes v as 8 bytes when is64, else 4.
func (w *wbuf) word(v uint64, is64 bool) {
	if is64 {
		w.u64(v)
	} else {
		w.u32(uint32(v))
	}
}

// name writes s into a fixed NUL-padded field of n bytes. Longer
// names are truncated; fixed-name emission paths must route long
// names through a string table first.
func (w *wbuf) name(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.b = append(w.b, field...)
}

// align zero-pads to the next multiple of n.
func (w *wbuf) align(n int) {
	if n <= 1 {
		return
	}
	for len(w.b)%n != 0 {
		w.b = append(w.b, 0)
	}
}

// patchU32 overwrites 4 bytes at off.
func (w *wbuf) patchU32(off int, v uint32) {
	w.bo.PutUint32(w.b[off:], v)
}

// patchU64 overwrites 8 bytes at off.
func (w *wbuf) patchU64(off int, v uint64) {
	w.bo.PutUint64(w.b[off:], v)
}
