// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/vfs"
	"github.com/stretchr/testify/require"
)

// TestRepairDBAfterLostManifest simulates the manifest
// absent-or-unusable case by deleting CURRENT and every MANIFEST file,
// leaving only the sstables and WAL segments RepairDB must reconstruct
// from.
func TestRepairDBAfterLostManifest(t *testing.T) {
	fs := vfs.NewMem()
	o := &Options{FS: fs, CreateIfMissing: true, MemTableSize: 1}

	d, err := Open("db", o)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		key := []byte{'a' + byte(i)}
		require.NoError(t, d.Put(key, key, WriteOptions{Sync: true}))
	}
	require.NoError(t, d.Close())

	names, err := fs.List("db")
	require.NoError(t, err)
	for _, n := range names {
		ft, _, ok := base.ParseFilename(n)
		if !ok {
			continue
		}
		if ft == base.FileTypeCurrent || ft == base.FileTypeManifest {
			require.NoError(t, fs.Remove(fs.PathJoin("db", n)))
		}
	}

	require.NoError(t, RepairDB("db", o))

	d2, err := Open("db", o)
	require.NoError(t, err)
	defer func() { require.NoError(t, d2.Close()) }()

	for i := 0; i < 8; i++ {
		key := []byte{'a' + byte(i)}
		v, err := d2.Get(key, ReadOptions{})
		require.NoError(t, err)
		require.Equal(t, key, v)
	}
}
