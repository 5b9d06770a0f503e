// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/stretchr/testify/require"
)

// memFile is an in-memory writeCloser/readerAt pair, standing in
// for a vfs.File in these package-local tests.
type memFile struct {
	buf bytes.Buffer
}

func (m *memFile) Write(p []byte) (int, error) { return m.buf.Write(p) }

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	data := m.buf.Bytes()
	if off < 0 || off > int64(len(data)) {
		return 0, fmt.Errorf("lsmkv: offset out of range")
	}
	n := copy(p, data[off:])
	return n, nil
}

func buildTable(t *testing.T, opts WriterOptions, n int) (*memFile, []string) {
	t.Helper()
	f := &memFile{}
	w := NewWriter(f, opts)
	var keys []string
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		keys = append(keys, k)
		ikey := base.MakeInternalKey([]byte(k), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(ikey, []byte(fmt.Sprintf("value-%d", i))))
	}
	props, err := w.Close()
	require.NoError(t, err)
	require.Equal(t, []byte(keys[0]), props.Smallest.UserKey)
	require.Equal(t, []byte(keys[n-1]), props.Largest.UserKey)
	return f, keys
}

func TestWriterReaderRoundTripNoCompression(t *testing.T) {
	opts := WriterOptions{BlockSize: 64, CompressionType: base.NoCompression}
	f, keys := buildTable(t, opts, 200)

	rd, err := NewReader(f, int64(f.buf.Len()), opts)
	require.NoError(t, err)

	it, err := rd.NewIter()
	require.NoError(t, err)

	it.First()
	for i, k := range keys {
		require.True(t, it.Valid(), "at index %d", i)
		require.Equal(t, []byte(k), it.Key().UserKey)
		require.Equal(t, []byte(fmt.Sprintf("value-%d", i)), it.Value())
		if i < len(keys)-1 {
			require.True(t, it.Next())
		}
	}
	require.NoError(t, it.Close())
}

func TestWriterReaderRoundTripZstd(t *testing.T) {
	opts := WriterOptions{BlockSize: 64, CompressionType: base.ZstdCompression}
	f, keys := buildTable(t, opts, 64)

	rd, err := NewReader(f, int64(f.buf.Len()), opts)
	require.NoError(t, err)
	it, err := rd.NewIter()
	require.NoError(t, err)

	it.First()
	count := 0
	for it.Valid() {
		require.Equal(t, []byte(keys[count]), it.Key().UserKey)
		count++
		it.Next()
	}
	require.Equal(t, len(keys), count)
}

func TestReaderSeekGE(t *testing.T) {
	opts := WriterOptions{BlockSize: 48, CompressionType: base.NoCompression}
	f, keys := buildTable(t, opts, 100)

	rd, err := NewReader(f, int64(f.buf.Len()), opts)
	require.NoError(t, err)
	it, err := rd.NewIter()
	require.NoError(t, err)

	it.SeekGE([]byte(keys[50]))
	require.True(t, it.Valid())
	require.Equal(t, []byte(keys[50]), it.Key().UserKey)

	it.SeekGE([]byte("key-0050a"))
	require.True(t, it.Valid())
	require.Equal(t, []byte(keys[51]), it.Key().UserKey)
}

func TestReaderLastAndPrev(t *testing.T) {
	opts := WriterOptions{BlockSize: 48, CompressionType: base.NoCompression}
	f, keys := buildTable(t, opts, 40)

	rd, err := NewReader(f, int64(f.buf.Len()), opts)
	require.NoError(t, err)
	it, err := rd.NewIter()
	require.NoError(t, err)

	it.Last()
	require.True(t, it.Valid())
	require.Equal(t, []byte(keys[len(keys)-1]), it.Key().UserKey)

	var seen []string
	for it.Valid() {
		seen = append(seen, string(it.Key().UserKey))
		it.Prev()
	}
	require.Len(t, seen, len(keys))
	for i, k := range keys {
		require.Equal(t, k, seen[len(seen)-1-i])
	}
}

func TestDecodeFooterRejectsBadMagic(t *testing.T) {
	buf := make([]byte, footerLen)
	_, err := decodeFooter(buf)
	require.Error(t, err)
}

func TestReadBlockDetectsCorruption(t *testing.T) {
	opts := WriterOptions{BlockSize: 1 << 20, CompressionType: base.NoCompression}
	f, _ := buildTable(t, opts, 10)

	// Flip a byte inside the first data block's payload.
	data := f.buf.Bytes()
	data[2] ^= 0xff

	rd, err := NewReader(f, int64(len(data)), opts)
	require.NoError(t, err)
	it, err := rd.NewIter()
	require.NoError(t, err)

	it.First()
	require.Error(t, it.Error())
}
