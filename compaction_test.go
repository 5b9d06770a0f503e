// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"fmt"
	"testing"
	"time"

	"github.com/lsmkv/lsmkv/vfs"
	"github.com/stretchr/testify/require"
)

// waitForCondition polls until cond returns true or the deadline passes,
// since compaction runs on backgroundWorker's own goroutine.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestLevel0CompactionTrigger(t *testing.T) {
	fs := vfs.NewMem()
	d, err := Open("db", &Options{FS: fs, CreateIfMissing: true, MemTableSize: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	// Each Put after the first rotates the memtable the previous Put filled
	// (MemTableSize: 1) and backgroundWorker flushes it to level 0;
	// level0CompactionTrigger files should collapse
	// into level 1.
	for i := 0; i < level0CompactionTrigger*3; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, d.Put(key, key, WriteOptions{}))
	}

	waitForCondition(t, func() bool {
		dump := d.ManifestDump()
		return len(dump[0]) < level0CompactionTrigger && len(dump[1]) > 0
	})

	for i := 0; i < level0CompactionTrigger*3; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		v, err := d.Get(key, ReadOptions{})
		require.NoError(t, err)
		require.Equal(t, key, v)
	}
}

func TestCompactionDropsDeletedKeys(t *testing.T) {
	fs := vfs.NewMem()
	d, err := Open("db", &Options{FS: fs, CreateIfMissing: true, MemTableSize: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	for i := 0; i < level0CompactionTrigger*2; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		require.NoError(t, d.Put(key, key, WriteOptions{}))
	}
	require.NoError(t, d.Delete([]byte("key-000"), WriteOptions{}))

	waitForCondition(t, func() bool {
		dump := d.ManifestDump()
		return len(dump[1]) > 0
	})

	_, err = d.Get([]byte("key-000"), ReadOptions{})
	require.Error(t, err)
}

func TestManifestDumpReflectsLevels(t *testing.T) {
	fs := vfs.NewMem()
	d, err := Open("db", &Options{FS: fs, CreateIfMissing: true, MemTableSize: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	require.NoError(t, d.Put([]byte("a"), []byte("1"), WriteOptions{}))
	// The memtable holding "a" is rotated, and so flushed, by the next write.
	require.NoError(t, d.Put([]byte("b"), []byte("2"), WriteOptions{}))
	waitForCondition(t, func() bool {
		dump := d.ManifestDump()
		return len(dump[0]) > 0
	})

	dump := d.ManifestDump()
	require.Len(t, dump[0], 1)
	require.Equal(t, "a", dump[0][0].Smallest)
}
