// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"fmt"
	"testing"

	"github.com/lsmkv/lsmkv/vfs"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, o *Options) *DB {
	t.Helper()
	if o == nil {
		o = &Options{}
	}
	o.FS = vfs.NewMem()
	o.CreateIfMissing = true
	d, err := Open("db", o)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })
	return d
}

func TestPutGetDelete(t *testing.T) {
	d := openTestDB(t, nil)

	require.NoError(t, d.Put([]byte("a"), []byte("1"), WriteOptions{}))
	v, err := d.Get([]byte("a"), ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, d.Delete([]byte("a"), WriteOptions{}))
	_, err = d.Get([]byte("a"), ReadOptions{})
	require.Error(t, err)
}

func TestGetMissingKey(t *testing.T) {
	d := openTestDB(t, nil)
	_, err := d.Get([]byte("missing"), ReadOptions{})
	require.Error(t, err)
}

func TestOverwriteVisibility(t *testing.T) {
	d := openTestDB(t, nil)
	require.NoError(t, d.Put([]byte("k"), []byte("v1"), WriteOptions{}))
	require.NoError(t, d.Put([]byte("k"), []byte("v2"), WriteOptions{}))
	v, err := d.Get([]byte("k"), ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestLargeValueRoundTrip(t *testing.T) {
	o := &Options{LargeValueThreshold: 8}
	d := openTestDB(t, o)

	big := make([]byte, 1024)
	for i := range big {
		big[i] = byte(i)
	}
	require.NoError(t, d.Put([]byte("blob"), big, WriteOptions{}))

	got, err := d.Get([]byte("blob"), ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, big, got)
}

func TestSnapshotIsolation(t *testing.T) {
	d := openTestDB(t, nil)
	require.NoError(t, d.Put([]byte("k"), []byte("v1"), WriteOptions{}))

	snap := d.GetSnapshot()
	defer d.ReleaseSnapshot(snap)

	require.NoError(t, d.Put([]byte("k"), []byte("v2"), WriteOptions{}))

	v, err := d.Get([]byte("k"), ReadOptions{Snapshot: snap})
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	v, err = d.Get([]byte("k"), ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestIteratorOrdering(t *testing.T) {
	d := openTestDB(t, nil)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, d.Put([]byte(k), []byte(k+k), WriteOptions{}))
	}

	it := d.NewIterator(ReadOptions{})
	defer it.Close()

	var got []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		got = append(got, string(it.Key()))
	}
	require.NoError(t, it.Status())
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFlushAndReopen(t *testing.T) {
	fs := vfs.NewMem()
	o := &Options{FS: fs, CreateIfMissing: true, MemTableSize: 1}

	d, err := Open("db", o)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		require.NoError(t, d.Put(key, key, WriteOptions{}))
	}
	require.NoError(t, d.Close())

	d2, err := Open("db", o)
	require.NoError(t, err)
	defer func() { require.NoError(t, d2.Close()) }()

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		v, err := d2.Get(key, ReadOptions{})
		require.NoError(t, err)
		require.Equal(t, key, v)
	}
}

func TestWriteBatchAtomicity(t *testing.T) {
	d := openTestDB(t, nil)

	b := NewBatch()
	b.Set([]byte("x"), []byte("1"))
	b.Set([]byte("y"), []byte("2"))
	require.NoError(t, d.Write(b, WriteOptions{}))

	for _, kv := range [][2]string{{"x", "1"}, {"y", "2"}} {
		v, err := d.Get([]byte(kv[0]), ReadOptions{})
		require.NoError(t, err)
		require.Equal(t, []byte(kv[1]), v)
	}
}

func TestMetricsTrackOperations(t *testing.T) {
	d := openTestDB(t, nil)
	require.NoError(t, d.Put([]byte("a"), []byte("1"), WriteOptions{}))
	_, _ = d.Get([]byte("a"), ReadOptions{})
	require.NoError(t, d.Delete([]byte("a"), WriteOptions{}))

	m := d.Metrics()
	require.Equal(t, int64(1), m.Puts)
	require.Equal(t, int64(1), m.Gets)
	require.Equal(t, int64(1), m.Deletes)
}

func TestCloseIsIdempotentError(t *testing.T) {
	fs := vfs.NewMem()
	d, err := Open("db", &Options{FS: fs, CreateIfMissing: true})
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.Error(t, d.Close())
}
