// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// InternalIterator is the capability set every child of the merging
// iterator (memtable, sstable, level file) implements: a polymorphic
// iterator over internal keys with dynamic dispatch. Implementations are
// not required to be thread-safe.
type InternalIterator interface {
	// SeekGE moves to the first key >= target.
	SeekGE(target []byte)
	// SeekLT moves to the last key < target.
	SeekLT(target []byte)
	// First moves to the first key.
	First()
	// Last moves to the last key.
	Last()
	// Next moves to the next key, returning whether the new position is
	// valid.
	Next() bool
	// Prev moves to the previous key, returning whether the new position
	// is valid.
	Prev() bool
	// Key returns the key at the current position. Only valid to call
	// when Valid returns true.
	Key() InternalKey
	// Value returns the value at the current position.
	Value() []byte
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool
	// Error returns the first error encountered by the iterator, if any.
	Error() error
	// Close releases resources held by the iterator and returns Error.
	Close() error
}

// emptyIter is the n=0 degenerate case: an empty iterator, always invalid.
type emptyIter struct{}

// NewEmptyIterator returns an InternalIterator that is always invalid.
func NewEmptyIterator() InternalIterator { return emptyIter{} }

func (emptyIter) SeekGE(target []byte)   {}
func (emptyIter) SeekLT(target []byte)   {}
func (emptyIter) First()                 {}
func (emptyIter) Last()                  {}
func (emptyIter) Next() bool             { return false }
func (emptyIter) Prev() bool             { return false }
func (emptyIter) Key() InternalKey       { panic("lsmkv: Key called on invalid iterator") }
func (emptyIter) Value() []byte          { panic("lsmkv: Value called on invalid iterator") }
func (emptyIter) Valid() bool            { return false }
func (emptyIter) Error() error           { return nil }
func (emptyIter) Close() error           { return nil }
