// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/lsmkv/lsmkv/internal/base"

// mergingIter implements the k-way ordered merge over a fixed set of
// child iterators. A linear scan over children computes argmin/argmax on
// each step rather than a heap: a non-semantic tuning choice, fine for the
// small fan-ins typical here (memtable + immutable memtables + one
// iterator per table file at every level).
type mergingIter struct {
	cmp      *base.InternalKeyComparer
	children []base.InternalIterator
	current int // index into children, or -1 if invalid
	dir int // +1 forward, -1 backward; tracks which of argmin/argmax is being maintained
	err      error
}

var _ base.InternalIterator = (*mergingIter)(nil)

// newMergingIter returns an iterator over children. Degenerate sizes are
// handled specially: n=0 returns an always-invalid iterator, and n=1
// returns the child directly without a wrapper.
func newMergingIter(cmp *base.InternalKeyComparer, children ...base.InternalIterator) base.InternalIterator {
	switch len(children) {
	case 0:
		return base.NewEmptyIterator()
	case 1:
		return children[0]
	default:
		return &mergingIter{cmp: cmp, children: children, current: -1, dir: 1}
	}
}

func (m *mergingIter) findMin() {
	m.current = -1
	for i, c := range m.children {
		if !c.Valid() {
			continue
		}
		if m.current == -1 || m.cmp.Compare(c.Key(), m.children[m.current].Key()) < 0 {
			m.current = i
		}
	}
}

func (m *mergingIter) findMax() {
	m.current = -1
	for i, c := range m.children {
		if !c.Valid() {
			continue
		}
		if m.current == -1 || m.cmp.Compare(c.Key(), m.children[m.current].Key()) > 0 {
			m.current = i
		}
	}
}

func (m *mergingIter) SeekGE(target []byte) {
	for _, c := range m.children {
		c.SeekGE(target)
	}
	m.dir = 1
	m.findMin()
}

func (m *mergingIter) SeekLT(target []byte) {
	for _, c := range m.children {
		c.SeekLT(target)
	}
	m.dir = -1
	m.findMax()
}

func (m *mergingIter) First() {
	for _, c := range m.children {
		c.First()
	}
	m.dir = 1
	m.findMin()
}

func (m *mergingIter) Last() {
	for _, c := range m.children {
		c.Last()
	}
	m.dir = -1
	m.findMax()
}

// switchToForward repositions every child at or after the current key when
// reversing direction, so a subsequent Next resumes a consistent forward
// scan. This repositioning is itself undefined across duplicate keys, by
// design.
func (m *mergingIter) switchToForward() {
	key := m.children[m.current].Key().UserKey
	for i, c := range m.children {
		if i == m.current {
			continue
		}
		c.SeekGE(key)
	}
	m.dir = 1
}

func (m *mergingIter) switchToBackward() {
	key := m.children[m.current].Key().UserKey
	for i, c := range m.children {
		if i == m.current {
			continue
		}
		c.SeekLT(key)
	}
	m.dir = -1
}

func (m *mergingIter) Next() bool {
	if m.current == -1 {
		return false
	}
	if m.dir != 1 {
		m.switchToForward()
	}
	m.children[m.current].Next()
	m.findMin()
	return m.current != -1
}

func (m *mergingIter) Prev() bool {
	if m.current == -1 {
		return false
	}
	if m.dir != -1 {
		m.switchToBackward()
	}
	m.children[m.current].Prev()
	m.findMax()
	return m.current != -1
}

func (m *mergingIter) Key() base.InternalKey {
	return m.children[m.current].Key()
}

func (m *mergingIter) Value() []byte {
	return m.children[m.current].Value()
}

func (m *mergingIter) Valid() bool {
	return m.current != -1
}

func (m *mergingIter) Error() error {
	if m.err != nil {
		return m.err
	}
	for _, c := range m.children {
		if err := c.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (m *mergingIter) Close() error {
	var first error
	for _, c := range m.children {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
