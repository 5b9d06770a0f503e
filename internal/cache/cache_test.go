// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package cache

import (
	"fmt"
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/sstable"
	"github.com/lsmkv/lsmkv/vfs"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, fs vfs.FS, dirname string, fileNum manifest.FileNum, n int) uint64 {
	t.Helper()
	path := base.MakeFilename(base.FileTypeTable, dirname, uint64(fileNum))
	f, err := fs.Create(path, vfs.WriteCategoryUnspecified)
	require.NoError(t, err)

	opts := sstable.WriterOptions{BlockSize: 64, CompressionType: base.NoCompression}
	w := sstable.NewWriter(f, opts)
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%04d", i)
		ikey := base.MakeInternalKey([]byte(k), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(ikey, []byte(fmt.Sprintf("value-%d", i))))
	}
	_, err = w.Close()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	info, err := fs.Stat(path)
	require.NoError(t, err)
	return uint64(info.Size())
}

func TestCacheGetOpensAndReuses(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("db"))
	size := writeTable(t, fs, "db", 1, 50)

	opts := sstable.WriterOptions{BlockSize: 64, CompressionType: base.NoCompression}
	c := New(fs, opts, 4)

	r1, err := c.Get("db", 1, size)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	r2, err := c.Get("db", 1, size)
	require.NoError(t, err)
	require.Same(t, r1, r2)
	require.Equal(t, 1, c.Len())

	c.Unref(1)
	c.Unref(1)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("db"))
	opts := sstable.WriterOptions{BlockSize: 64, CompressionType: base.NoCompression}

	var sizes [3]uint64
	for i := manifest.FileNum(1); i <= 3; i++ {
		sizes[i-1] = writeTable(t, fs, "db", i, 10)
	}

	c := New(fs, opts, 2)

	_, err := c.Get("db", 1, sizes[0])
	require.NoError(t, err)
	c.Unref(1)
	_, err = c.Get("db", 2, sizes[1])
	require.NoError(t, err)
	c.Unref(2)
	require.Equal(t, 2, c.Len())

	// Pulling in a third, unreferenced file evicts file 1 (least recently used).
	_, err = c.Get("db", 3, sizes[2])
	require.NoError(t, err)
	c.Unref(3)
	require.Equal(t, 2, c.Len())

	_, ok := c.index.Get(1)
	require.False(t, ok)
	_, ok = c.index.Get(2)
	require.True(t, ok)
	_, ok = c.index.Get(3)
	require.True(t, ok)
}

func TestCachePinnedEntrySurvivesEviction(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("db"))
	opts := sstable.WriterOptions{BlockSize: 64, CompressionType: base.NoCompression}

	var sizes [3]uint64
	for i := manifest.FileNum(1); i <= 3; i++ {
		sizes[i-1] = writeTable(t, fs, "db", i, 10)
	}

	c := New(fs, opts, 2)

	_, err := c.Get("db", 1, sizes[0]) // left pinned: an "open iterator"
	require.NoError(t, err)
	_, err = c.Get("db", 2, sizes[1])
	require.NoError(t, err)
	c.Unref(2)

	_, err = c.Get("db", 3, sizes[2])
	require.NoError(t, err)
	c.Unref(3)

	// File 1 is pinned, so file 2 (next-LRU) is evicted instead, and the
	// cache is allowed to exceed capacity by the number of pinned entries.
	_, ok := c.index.Get(1)
	require.True(t, ok)
	_, ok = c.index.Get(3)
	require.True(t, ok)
}

func TestCacheEvict(t *testing.T) {
	fs := vfs.NewMem()
	require.NoError(t, fs.MkdirAll("db"))
	size := writeTable(t, fs, "db", 1, 10)
	opts := sstable.WriterOptions{BlockSize: 64, CompressionType: base.NoCompression}
	c := New(fs, opts, 4)

	_, err := c.Get("db", 1, size)
	require.NoError(t, err)
	c.Unref(1)
	require.Equal(t, 1, c.Len())

	c.Evict(1)
	require.Equal(t, 0, c.Len())
}
