// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec maps on-disk compression tags to decompression
// routines. Format parsers hand a compressed section's raw bytes and
// declared uncompressed size to Decompress; the registry selects the
// codec by tag.
//
// Zlib and zstd are registered by default. Callers may substitute or
// extend codecs with Register before parsing.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// A Type identifies a compression format. The values of Zlib and Zstd
// match the ELF ch_type encodings (ELFCOMPRESS_ZLIB, ELFCOMPRESS_ZSTD),
// which other formats reuse here as neutral tags.
type Type uint32

const (
	None Type = 0
	Zlib Type = 1
	Zstd Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint32(t))
}

// ErrUnsupported reports a compression tag with no registered codec.
var ErrUnsupported = errors.New("unsupported compression format")

// A Func decodes a complete compressed stream. size is the declared
// uncompressed size; implementations must not allocate beyond it and
// must fail if the stream does not decode to exactly size bytes.
type Func func(raw []byte, size uint64) ([]byte, error)

var registry sync.Map // Type -> Func

// Register installs fn as the decoder for tag t, replacing any
// previous registration.
func Register(t Type, fn Func) {
	registry.Store(t, fn)
}

// Decompress decodes raw, which is declared to hold size uncompressed
// bytes, using the codec registered for t.
func Decompress(t Type, raw []byte, size uint64) ([]byte, error) {
	fn, ok := registry.Load(t)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, t)
	}
	return fn.(Func)(raw, size)
}

// Registered reports whether a codec is registered for t.
func Registered(t Type) bool {
	_, ok := registry.Load(t)
	return ok
}

const maxDecompressed = 1 << 32 // cap for declared uncompressed sizes

func checkedSize(size uint64) (int, error) {
	if size > maxDecompressed {
		return 0, fmt.Errorf("declared uncompressed size %#x too large", size)
	}
	return int(size), nil
}

func decodeZlib(raw []byte, size uint64) ([]byte, error) {
	n, err := checkedSize(size)
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	out := make([]byte, n)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	// The stream must not carry trailing data beyond the declared size.
	var tail [1]byte
	if _, err := zr.Read(tail[:]); err != io.EOF {
		return nil, fmt.Errorf("zlib: stream longer than declared size %d", n)
	}
	return out, nil
}

func decodeZstd(raw []byte, size uint64) ([]byte, error) {
	n, err := checkedSize(size)
	if err != nil {
		return nil, err
	}
	zr, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(n)+1))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	defer zr.Close()
	out, err := zr.DecodeAll(raw, make([]byte, 0, n))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("zstd: decoded %d bytes, declared %d", len(out), size)
	}
	return out, nil
}

func init() {
	Register(Zlib, decodeZlib)
	Register(Zstd, decodeZstd)
}
