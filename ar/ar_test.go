// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ar

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	in := []Member{
		{Name: "short.o", Data: []byte("first member")},
		{Name: "a_name_well_past_fifteen_bytes.o", Data: []byte("odd")},
		{Name: "empty.o"},
	}
	raw, err := Write(in)
	require.NoError(t, err)
	require.True(t, Match(raw))

	a, err := Parse(raw)
	require.NoError(t, err)
	require.False(t, a.Thin)

	got := a.Members()
	require.Len(t, got, len(in))
	for i := range in {
		require.Equal(t, in[i].Name, got[i].Name)
		if diff := cmp.Diff(in[i].Data, got[i].Data); diff != "" {
			t.Errorf("member %q data mismatch (-want +got):\n%s", in[i].Name, diff)
		}
	}

	// Same input, same bytes.
	raw2, err := Write(in)
	require.NoError(t, err)
	require.True(t, bytes.Equal(raw, raw2))
}

func TestGNUNames(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magicArch)
	table := "first_very_long_member_name.o/\nsecond_long_name.o/\n"
	writeHeader(&buf, "//", 0, len(table))
	buf.WriteString(table)
	writeHeader(&buf, "/0", 0644, 2)
	buf.WriteString("aa")
	writeHeader(&buf, "/31", 0644, 2)
	buf.WriteString("bb")

	a, err := Parse(buf.Bytes())
	require.NoError(t, err)
	members := a.Members()
	require.Len(t, members, 2)
	require.Equal(t, "first_very_long_member_name.o", members[0].Name)
	require.Equal(t, "second_long_name.o", members[1].Name)
}

func TestBSDNames(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magicArch)
	name := "bsd_member_name.o"
	body := append([]byte(name), []byte("payload!")...)
	writeHeader(&buf, "#1/17", 0644, len(body))
	buf.Write(body)
	pad(&buf)

	a, err := Parse(buf.Bytes())
	require.NoError(t, err)
	members := a.Members()
	require.Len(t, members, 1)
	require.Equal(t, name, members[0].Name)
	require.Equal(t, []byte("payload!"), members[0].Data)
}

func TestSymbolTableSkipped(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magicArch)
	writeHeader(&buf, "/", 0, 4)
	buf.Write([]byte{0, 0, 0, 0})
	writeHeader(&buf, "obj.o/", 0644, 3)
	buf.WriteString("abc")
	pad(&buf)

	a, err := Parse(buf.Bytes())
	require.NoError(t, err)
	members := a.Members()
	require.Len(t, members, 1)
	require.Equal(t, "obj.o", members[0].Name)
}

func TestThin(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magicThin)
	// Thin members record their real size but store no bytes.
	writeHeader(&buf, "elsewhere.o/", 0644, 1234)

	a, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.True(t, a.Thin)
	members := a.Members()
	require.Len(t, members, 1)
	require.Equal(t, "elsewhere.o", members[0].Name)
	require.Empty(t, members[0].Data)
}

func TestNotArchive(t *testing.T) {
	_, err := Parse([]byte("definitely not an archive"))
	require.ErrorIs(t, err, ErrNotArchive)
	_, err = Parse(nil)
	require.ErrorIs(t, err, ErrNotArchive)
}

func TestCorrupt(t *testing.T) {
	good, err := Write([]Member{{Name: "m.o", Data: []byte("data")}})
	require.NoError(t, err)

	// Truncations either parse a prefix or fail cleanly.
	for n := 0; n <= len(good); n++ {
		Parse(good[:n])
	}

	// Member size past EOF.
	bad := append([]byte(nil), good...)
	copy(bad[8+48:], "9999999   ")
	_, err = Parse(bad)
	require.Error(t, err)

	// Broken header magic.
	bad = append([]byte(nil), good...)
	bad[8+58] = 'x'
	_, err = Parse(bad)
	require.Error(t, err)

	// Reserved character in a name rejects at write time.
	_, err = Write([]Member{{Name: "bad/name.o"}})
	require.Error(t, err)
}

func FuzzParse(f *testing.F) {
	seed, _ := Write([]Member{
		{Name: "a.o", Data: []byte("aa")},
		{Name: "a_name_well_past_fifteen_bytes.o", Data: []byte("bb")},
	})
	f.Add(seed)
	f.Fuzz(func(t *testing.T, data []byte) {
		a, err := Parse(data)
		if err != nil {
			return
		}
		for _, m := range a.Members() {
			_ = m.IsSymbolTable()
		}
	})
}
