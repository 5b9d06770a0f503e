// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/lsmkv/lsmkv/internal/base"

// compactionIter collapses a merged run of internal keys down to the one
// entry per user key that a compaction keeps, grounded on
// _examples/ariesdevil-pebble/compaction_iter.go's compactionIter with its
// mergeNext/InternalKeyKindMerge case removed — this engine's vtype domain
// has no merge operator (internal/base.InternalKeyKind's doc comment).
// Next drops the shadowed older versions of a key itself. Dropping
// tombstones once they reach the base level is left to the caller
// (runCompactionLocked), since that decision needs the live version's
// deeper levels which this iterator doesn't see.
type compactionIter struct {
	cmp   *base.InternalKeyComparer
	iter  base.InternalIterator
	err   error
	key   base.InternalKey
	value []byte
	valid bool
}

func newCompactionIter(cmp *base.InternalKeyComparer, iter base.InternalIterator) *compactionIter {
	return &compactionIter{cmp: cmp, iter: iter}
}

func (i *compactionIter) First() {
	if i.err != nil {
		return
	}
	i.iter.First()
	i.findNextEntry()
}

// Next skips every remaining internal key sharing the current user key
// (older versions, already shadowed) before settling on the next one.
func (i *compactionIter) Next() bool {
	if i.err != nil || !i.valid {
		return false
	}
	ukey := append([]byte(nil), i.key.UserKey...)
	for i.iter.Valid() && i.cmp.User.Compare(i.iter.Key().UserKey, ukey) == 0 {
		i.iter.Next()
	}
	return i.findNextEntry()
}

func (i *compactionIter) findNextEntry() bool {
	i.valid = false
	if !i.iter.Valid() {
		return false
	}
	k := i.iter.Key()
	switch k.Kind() {
	case base.InternalKeyKindDelete, base.InternalKeyKindSet, base.InternalKeyKindLargeValueRef:
		i.key = k
		i.value = i.iter.Value()
		i.valid = true
		return true
	default:
		i.err = base.CorruptionErrorf("lsmkv: invalid internal key kind %d during compaction", k.Kind())
		return false
	}
}

func (i *compactionIter) Key() base.InternalKey { return i.key }
func (i *compactionIter) Value() []byte         { return i.value }
func (i *compactionIter) Valid() bool           { return i.valid }
func (i *compactionIter) Error() error          { return i.err }
func (i *compactionIter) Close() error          { return i.iter.Close() }
