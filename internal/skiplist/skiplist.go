// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package skiplist implements the ordered, probabilistically-balanced list
// that backs the memtable ("in-memory structure... ordered
// by the internal-key comparator"). Grounded structurally on the
// arena-backed probabilistic skip list badger's skl package implements
// (_examples/other_examples/d978bb60_AlexanderChiuluvB-badger__memtable.go.go
// builds its memtable directly atop one), but built against this engine's
// own base.InternalKeyComparer instead of pulling in badger as a
// dependency — see DESIGN.md for why no pack dependency could be wired here
// instead.
package skiplist

import (
	"math/rand"

	"github.com/lsmkv/lsmkv/internal/base"
)

const maxHeight = 12
const branching = 4

type node struct {
	key    base.InternalKey
	value  []byte
	next   []*node
}

// Skiplist is an ordered, singly-owned (guarded by the caller's mutex)
// list of internal-key to value entries.
type Skiplist struct {
	cmp    *base.InternalKeyComparer
	rnd    *rand.Rand
	head   *node
	height int
	length int
}

// New returns an empty skip list ordered by cmp.
func New(cmp *base.InternalKeyComparer) *Skiplist {
	return &Skiplist{
		cmp:    cmp,
		rnd:    rand.New(rand.NewSource(0xda7a)),
		head:   &node{next: make([]*node, maxHeight)},
		height: 1,
	}
}

func (s *Skiplist) randomHeight() int {
	h := 1
	for h < maxHeight && s.rnd.Intn(branching) == 0 {
		h++
	}
	return h
}

// findGreaterOrEqual returns, at each level, the last node strictly less
// than key (prev[level]) and the first node at that level with a key >=
// target (or nil).
func (s *Skiplist) findGreaterOrEqual(key base.InternalKey, prev []*node) *node {
	x := s.head
	level := s.height - 1
	for {
		next := x.next[level]
		if next != nil && s.cmp.Compare(next.key, key) < 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// Insert adds key/value to the list. Keys may repeat (distinct sequence
// numbers make every internal key unique in practice); Insert does not
// deduplicate.
func (s *Skiplist) Insert(key base.InternalKey, value []byte) {
	var prev [maxHeight]*node
	s.findGreaterOrEqual(key, prev[:])

	h := s.randomHeight()
	if h > s.height {
		for i := s.height; i < h; i++ {
			prev[i] = s.head
		}
		s.height = h
	}

	n := &node{key: key, value: value, next: make([]*node, h)}
	for i := 0; i < h; i++ {
		n.next[i] = prev[i].next[i]
		prev[i].next[i] = n
	}
	s.length++
}

// Len returns the number of entries in the list.
func (s *Skiplist) Len() int { return s.length }

// ApproximateMemoryUsage estimates the bytes retained by the list's
// entries, used by the memtable to decide when to switch to a new one.
func (s *Skiplist) ApproximateMemoryUsage() int {
	const nodeOverhead = 48
	n := 0
	for x := s.head.next[0]; x != nil; x = x.next[0] {
		n += nodeOverhead + len(x.key.UserKey) + 8 + len(x.value)
	}
	return n
}

// Iterator walks the skip list in key order, implementing
// base.InternalIterator.
type Iterator struct {
	list *Skiplist
	cur  *node
}

var _ base.InternalIterator = (*Iterator)(nil)

// NewIterator returns an iterator over list. The iterator observes
// whatever state list is in as it moves; concurrent mutation while
// iterating is the caller's responsibility to serialize.
func NewIterator(list *Skiplist) *Iterator {
	return &Iterator{list: list}
}

// seekKey builds the lookup key for target: user key paired with the
// largest possible trailer (max sequence number, ForSeek kind). Since
// entries with equal user keys sort by descending trailer, this lookup key
// compares less than every real entry for target's user key — so
// findGreaterOrEqual lands on the first (highest-seq) stored entry for that
// user key, rather than skipping past all of them. The classic LevelDB
// "LookupKey" trick.
func seekKey(target []byte) base.InternalKey {
	return base.MakeInternalKey(target, base.SeqNumMax, base.InternalKeyKindForSeek)
}

func (it *Iterator) SeekGE(target []byte) {
	it.cur = it.list.findGreaterOrEqual(seekKey(target), nil)
}

func (it *Iterator) SeekLT(target []byte) {
	var prev [maxHeight]*node
	it.list.findGreaterOrEqual(seekKey(target), prev[:])
	it.cur = prev[0]
	if it.cur == it.list.head {
		it.cur = nil
	}
}

func (it *Iterator) First() {
	it.cur = it.list.head.next[0]
}

func (it *Iterator) Last() {
	x := it.list.head
	level := it.list.height - 1
	for {
		next := x.next[level]
		if next != nil {
			x = next
			continue
		}
		if level == 0 {
			break
		}
		level--
	}
	if x == it.list.head {
		it.cur = nil
		return
	}
	it.cur = x
}

func (it *Iterator) Next() bool {
	if it.cur == nil {
		return false
	}
	it.cur = it.cur.next[0]
	return it.cur != nil
}

func (it *Iterator) Prev() bool {
	if it.cur == nil {
		return false
	}
	var prev [maxHeight]*node
	it.list.findGreaterOrEqual(it.cur.key, prev[:])
	if prev[0] == it.list.head {
		it.cur = nil
		return false
	}
	it.cur = prev[0]
	return true
}

func (it *Iterator) Key() base.InternalKey { return it.cur.key }
func (it *Iterator) Value() []byte         { return it.cur.value }
func (it *Iterator) Valid() bool           { return it.cur != nil }
func (it *Iterator) Error() error          { return nil }
func (it *Iterator) Close() error          { return nil }
