// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVarintRoundTrip checks that for every v, decoding the encoding of
// v returns v, consuming exactly VarintLen64(v) bytes.
func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 255, 256, 1 << 14, 1<<14 - 1, 1 << 21, 1 << 28,
		1 << 35, 1 << 42, 1 << 49, 1 << 56, 1 << 63, math.MaxUint64,
		math.MaxUint32, math.MaxUint32 + 1,
	}
	for _, v := range values {
		buf := PutVarint64(nil, v)
		require.Equal(t, VarintLen64(v), len(buf))
		c := NewCursor(buf)
		got, err := c.Varint64()
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, 0, c.Remaining())
	}
}

func TestVarint32Overflow(t *testing.T) {
	buf := PutVarint64(nil, uint64(math.MaxUint32)+1)
	c := NewCursor(buf)
	_, err := c.Varint32()
	require.Error(t, err)
}

func TestLengthPrefixedBytes(t *testing.T) {
	var buf []byte
	buf = PutBytes(buf, []byte("hello"))
	buf = PutBytes(buf, []byte(""))
	buf = PutBytes(buf, []byte("world!"))

	c := NewCursor(buf)
	for _, want := range []string{"hello", "", "world!"} {
		got, err := c.Bytes()
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
	require.Equal(t, 0, c.Remaining())
}
