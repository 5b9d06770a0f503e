// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lvref

import (
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip checks that parse(toString(make(v, c))) == make(v, c)
// for all v, c.
func TestRoundTrip(t *testing.T) {
	values := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("hello, world"),
		make([]byte, 1<<20),
	}
	ctypes := []base.CompressionType{base.NoCompression, base.SnappyCompression, base.ZstdCompression}
	for _, v := range values {
		for _, ct := range ctypes {
			ref := Make(v, ct)
			s := ref.String()
			got, ok := Parse(s)
			require.True(t, ok, "parse failed for %q", s)
			require.Equal(t, ref, got)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-hex-at-all-not-hex-at-all-not-hex--1-0",
		"0000000000000000000000000000000000000000-10-0-trailing",
		"0000000000000000000000000000000000000000-10",
		"0000000000000000000000000000000000000000-10-99",
	}
	for _, s := range cases {
		_, ok := Parse(s)
		require.False(t, ok, "expected parse failure for %q", s)
	}
}

func TestEncodeDecodeWire(t *testing.T) {
	ref := Make([]byte("payload"), base.SnappyCompression)
	buf := ref.Encode(nil)
	require.Len(t, buf, ByteSize)
	got, err := DecodeRef(buf)
	require.NoError(t, err)
	require.Equal(t, ref, got)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")
	for _, ct := range []base.CompressionType{base.NoCompression, base.SnappyCompression, base.ZstdCompression} {
		compressed, err := Compress(payload, ct)
		require.NoError(t, err)
		got, err := Decompress(compressed, ct, len(payload))
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}
