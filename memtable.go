// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/internal/skiplist"
)

// memTableEntrySize estimates the bytes a single key/value pair retains in
// a memtable, grounded on
// _examples/ariesdevil-pebble/batch.go's memTableEntrySize accounting
// (used there to decide when a batch's Apply has grown a memtable past its
// size threshold).
func memTableEntrySize(keyLen, valueLen int) uint32 {
	const entryOverhead = 16
	return uint32(keyLen+valueLen) + entryOverhead
}

// memTable is the mutable, in-memory sorted map from internal key to value
// backing one generation of writes ("Lifecycles": "A memtable is
// created empty, accumulates writes, is frozen on rotation..."). Grounded on
// _examples/ariesdevil-pebble/open.go's `d.mu.mem.queue`, a
// reference-counted queue of memtables with the oldest flushed first.
type memTable struct {
	cmp      *base.InternalKeyComparer
	skl      *skiplist.Skiplist
	logNum manifest.FileNum // WAL this memtable's writes are durable in; see db.go
	size     uint32
	refs     int32
	flushedCh chan struct{}
}

func newMemTable(cmp *base.InternalKeyComparer) *memTable {
	return &memTable{
		cmp:       cmp,
		skl:       skiplist.New(cmp),
		refs:      1,
		flushedCh: make(chan struct{}),
	}
}

// ref/unref follow "Memtables are reference-counted: each is
// dropped only when no iterator, no writer, and no background task
// references it."
func (m *memTable) ref() {
	m.refs++
}

func (m *memTable) unref() bool {
	m.refs--
	return m.refs == 0
}

// set inserts a Set, Delete, or LargeValueRef entry at seq.
func (m *memTable) set(key base.InternalKey, value []byte) {
	m.skl.Insert(key, value)
	m.size += memTableEntrySize(len(key.UserKey), len(value))
}

// get returns the most recent value visible at or before seq for ukey, if
// any entry for ukey exists at all (so the caller can distinguish "not
// present" from "present but a Deletion").
func (m *memTable) get(ukey []byte, seq base.SeqNum) (value []byte, kind base.InternalKeyKind, found bool) {
	// SeekGE compares against the extracted user-key portion of stored
	// entries (see skiplist.Iterator.SeekGE / sstable blockIter.SeekGE), so
	// it lands on the highest-seq entry for ukey — exactly the version to
	// start scanning forward from for the newest entry at or below seq.
	it := skiplist.NewIterator(m.skl)
	it.SeekGE(ukey)
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if m.cmp.User.Compare(k.UserKey, ukey) != 0 {
			return nil, 0, false
		}
		if k.SeqNum() <= seq {
			return it.Value(), k.Kind(), true
		}
	}
	return nil, 0, false
}

// newIter returns an InternalIterator over the memtable's entries,
// implementing base.InternalIterator so it can be fed directly to the
// merging iterator.
func (m *memTable) newIter() base.InternalIterator {
	return skiplist.NewIterator(m.skl)
}

// approximateSize reports the memtable's estimated retained bytes, used by
// the database facade to decide when to rotate ("rotating
// memtables when they exceed a size threshold").
func (m *memTable) approximateSize() uint32 {
	return m.size
}

func (m *memTable) empty() bool {
	return m.skl.Len() == 0
}
