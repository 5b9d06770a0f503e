// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package cache implements the table cache: an LRU cache of open
// sstable readers keyed by file number, so repeated reads of the same
// table don't repeatedly pay to open and parse its footer and index
// block. Backed by a cockroachdb/swiss hash map for O(1) lookup plus an
// intrusive doubly-linked list for LRU ordering.
package cache

import (
	"sync"

	"github.com/cockroachdb/swiss"
	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/sstable"
	"github.com/lsmkv/lsmkv/vfs"
)

// entry is one node of the LRU list.
type entry struct {
	fileNum manifest.FileNum
	reader  *sstable.Reader
	file    vfs.File
	pinned int // open iterators referencing this entry
	prev, next *entry
}

// Cache is an LRU cache of open table readers. Safe for concurrent use;
// the database facade's single mutex already serializes most access, but
// background compaction and foreground reads can race on cache lookups.
type Cache struct {
	mu sync.Mutex

	fs   vfs.FS
	opts sstable.WriterOptions

	capacity int
	index    *swiss.Map[manifest.FileNum, *entry]
	head *entry // most-recently-used sentinel neighbor
	tail *entry // least-recently-used sentinel neighbor
}

// New returns a cache holding at most capacity open readers.
func New(fs vfs.FS, opts sstable.WriterOptions, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	head := &entry{}
	tail := &entry{}
	head.next = tail
	tail.prev = head
	return &Cache{
		fs:       fs,
		opts:     opts,
		capacity: capacity,
		index:    swiss.New[manifest.FileNum, *entry](capacity),
		head:     head,
		tail:     tail,
	}
}

func (c *Cache) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *Cache) pushFront(e *entry) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) touch(e *entry) {
	c.unlink(e)
	c.pushFront(e)
}

// Get returns the reader for fileNum, opening it via dirname/path if it is
// not already cached. The caller must call Unref when done iterating.
func (c *Cache) Get(dirname string, fileNum manifest.FileNum, fileSize uint64) (*sstable.Reader, error) {
	c.mu.Lock()
	if e, ok := c.index.Get(fileNum); ok {
		c.touch(e)
		e.pinned++
		c.mu.Unlock()
		return e.reader, nil
	}
	c.mu.Unlock()

	path := base.MakeFilename(base.FileTypeTable, dirname, uint64(fileNum))
	f, err := c.fs.OpenTable(path)
	if err != nil {
		return nil, base.IOErrorf(err, "lsmkv: opening table %q", path)
	}
	reader, err := sstable.NewReader(f, int64(fileSize), c.opts)
	if err != nil {
		f.Close()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index.Get(fileNum); ok {
		// Lost the race with a concurrent opener; keep theirs, close ours.
		f.Close()
		c.touch(e)
		e.pinned++
		return e.reader, nil
	}
	e := &entry{fileNum: fileNum, reader: reader, file: f, pinned: 1}
	c.pushFront(e)
	c.index.Put(fileNum, e)
	c.evictLocked()
	return reader, nil
}

// Unref releases a reference obtained from Get, once the caller's iterator
// over the table is closed.
func (c *Cache) Unref(fileNum manifest.FileNum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index.Get(fileNum); ok && e.pinned > 0 {
		e.pinned--
	}
}

// evictLocked drops least-recently-used, unpinned entries until the cache
// is back at or under capacity. Pinned entries (open iterators) are never
// evicted, matching "cache entries are pinned while iterators
// exist."
func (c *Cache) evictLocked() {
	for c.index.Len() > c.capacity {
		victim := c.tail.prev
		if victim == c.head {
			return
		}
		if victim.pinned > 0 {
			// Walk forward looking for an unpinned victim rather than
			// exceeding capacity forever; in practice pinned entries are
			// rare relative to capacity.
			found := false
			for v := victim.prev; v != c.head; v = v.prev {
				if v.pinned == 0 {
					victim = v
					found = true
					break
				}
			}
			if !found {
				return
			}
		}
		c.unlink(victim)
		c.index.Delete(victim.fileNum)
		victim.file.Close()
	}
}

// Evict forcibly drops fileNum from the cache (used once a file is deleted
// by compaction and every reference is gone).
func (c *Cache) Evict(fileNum manifest.FileNum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index.Get(fileNum)
	if !ok {
		return
	}
	c.unlink(e)
	c.index.Delete(fileNum)
	e.file.Close()
}

// Len reports the number of open readers currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}
