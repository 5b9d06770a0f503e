// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemFSReadWrite(t *testing.T) {
	fs := NewMem()
	f, err := fs.Create("/a/b.txt", WriteCategoryUnspecified)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf, err := fs.Open("/a/b.txt")
	require.NoError(t, err)
	got, err := io.ReadAll(rf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	fi, err := fs.Stat("/a/b.txt")
	require.NoError(t, err)
	require.EqualValues(t, 5, fi.Size())
}

func TestMemFSRenameAndList(t *testing.T) {
	fs := NewMem()
	for _, name := range []string{"/dir/1.sst", "/dir/2.sst"} {
		f, err := fs.Create(name, WriteCategoryUnspecified)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	names, err := fs.List("/dir")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1.sst", "2.sst"}, names)

	require.NoError(t, fs.Rename("/dir/1.sst", "/dir/3.sst"))
	_, err = fs.Open("/dir/1.sst")
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = fs.Open("/dir/3.sst")
	require.NoError(t, err)
}

func TestMemFSLockExclusive(t *testing.T) {
	fs := NewMem()
	l, err := fs.Lock("/LOCK")
	require.NoError(t, err)
	_, err = fs.Lock("/LOCK")
	require.Error(t, err)
	require.NoError(t, l.Close())
	l2, err := fs.Lock("/LOCK")
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}
