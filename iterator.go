// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/lsmkv/lsmkv/internal/base"

// Iterator is the external, user-key-granular cursor:
// SeekToFirst/SeekToLast/Seek/Next/Prev/Valid/key/value/status. It wraps the
// internal merging iterator, collapsing the internal-key stream down to one
// entry per distinct user key (the newest version visible at the iterator's
// sequence number) and skipping over Deletion tombstones.
type Iterator struct {
	cmp     *base.InternalKeyComparer
	iter    base.InternalIterator
	seq     base.SeqNum
	resolve func(kind base.InternalKeyKind, value []byte) ([]byte, error)
	key     []byte
	value   []byte
	valid   bool
	err     error
}

// newIterator wraps iter (typically a mergingIter over the current
// memtable(s) and sstables) with user-key-at-a-snapshot semantics. seq
// bounds visibility: only entries with SeqNum <= seq are visible, the
// same rule a snapshot uses to pin a specific sequence number. resolve is
// called with each published entry's kind and raw stored value; for a
// LargeValueRef entry it reads the referenced file through
// internal/lvref, so callers of Value never see the indirection. resolve
// may be nil, in which case the raw stored value is returned unchanged.
func newIterator(cmp *base.InternalKeyComparer, iter base.InternalIterator, seq base.SeqNum, resolve func(kind base.InternalKeyKind, value []byte) ([]byte, error)) *Iterator {
	return &Iterator{cmp: cmp, iter: iter, seq: seq, resolve: resolve}
}

// resolveValue copies the raw stored value and, if a resolver is installed,
// passes it through (e.g. to follow a LargeValueRef to its file).
func (it *Iterator) resolveValue(kind base.InternalKeyKind, raw []byte) ([]byte, error) {
	value := append([]byte(nil), raw...)
	if it.resolve == nil {
		return value, nil
	}
	return it.resolve(kind, value)
}

// findNextVisible scans iter forward from its current position until it
// finds a user key with an entry visible at seq, landing on a Set
// (publishing its value) or reporting invalid if the scan is exhausted.
// Deletion entries consume every older version of the same user key so the
// deleted key never resurfaces, matching Get's contract: it never returns
// a Deletion, a value of the deleted key, or a stale value hidden by it.
func (it *Iterator) findNextVisible() {
	for it.iter.Valid() {
		k := it.iter.Key()
		if k.SeqNum() > it.seq {
			it.iter.Next()
			continue
		}
		ukey := append([]byte(nil), k.UserKey...)
		switch k.Kind() {
		case base.InternalKeyKindDelete:
			it.skipUserKeyForward(ukey)
			continue
		case base.InternalKeyKindSet, base.InternalKeyKindLargeValueRef:
			value, err := it.resolveValue(k.Kind(), it.iter.Value())
			if err != nil {
				it.err = err
				it.valid = false
				return
			}
			it.key = ukey
			it.value = value
			it.valid = true
			it.skipUserKeyForward(ukey)
			return
		default:
			it.iter.Next()
		}
	}
	it.valid = false
}

// skipUserKeyForward advances past every remaining internal-key entry for
// ukey, so the scan lands on the next distinct user key.
func (it *Iterator) skipUserKeyForward(ukey []byte) {
	for it.iter.Valid() && it.cmp.User.Compare(it.iter.Key().UserKey, ukey) == 0 {
		it.iter.Next()
	}
}

// findPrevVisible is findNextVisible's mirror image for reverse iteration:
// for each distinct user key scanning backward, it finds the newest entry
// at or below seq among that key's versions before deciding whether to
// publish it or move on to the previous user key.
func (it *Iterator) findPrevVisible() {
	for it.iter.Valid() {
		ukey := append([]byte(nil), it.iter.Key().UserKey...)
		var kind base.InternalKeyKind
		var rawValue []byte
		found := false
		for it.iter.Valid() && it.cmp.User.Compare(it.iter.Key().UserKey, ukey) == 0 {
			k := it.iter.Key()
			if k.SeqNum() <= it.seq && !found {
				kind = k.Kind()
				rawValue = append([]byte(nil), it.iter.Value()...)
				found = true
			}
			it.iter.Prev()
		}
		if found && (kind == base.InternalKeyKindSet || kind == base.InternalKeyKindLargeValueRef) {
			value, err := it.resolveValue(kind, rawValue)
			if err != nil {
				it.err = err
				it.valid = false
				return
			}
			it.key = ukey
			it.value = value
			it.valid = true
			return
		}
		// Either nothing visible or the newest visible entry is a Deletion;
		// continue to the previous distinct user key.
	}
	it.valid = false
}

// SeekToFirst positions the iterator at the smallest visible user key.
func (it *Iterator) SeekToFirst() {
	it.iter.First()
	it.findNextVisible()
}

// SeekToLast positions the iterator at the largest visible user key.
func (it *Iterator) SeekToLast() {
	it.iter.Last()
	it.findPrevVisible()
}

// Seek positions the iterator at the smallest visible user key >= target.
func (it *Iterator) Seek(target []byte) {
	it.iter.SeekGE(target)
	it.findNextVisible()
}

// Next advances to the next visible user key.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	it.findNextVisible()
}

// Prev moves to the previous visible user key. As with
// the underlying merging iterator, reversing direction mid-scan across
// duplicate user keys is well-defined here only because findNextVisible
// always leaves the child iterator positioned just past the last entry for
// the current user key.
func (it *Iterator) Prev() {
	if !it.valid {
		return
	}
	it.iter.Prev()
	if it.iter.Valid() {
		it.skipUserKeyBackward(it.key)
	}
	it.findPrevVisible()
}

func (it *Iterator) skipUserKeyBackward(ukey []byte) {
	for it.iter.Valid() && it.cmp.User.Compare(it.iter.Key().UserKey, ukey) == 0 {
		it.iter.Prev()
	}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.valid
}

// Key returns the user key at the iterator's current position. The
// returned slice is only valid until the next positioning call.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns the value at the iterator's current position, already
// resolved through any large-value indirection (see db.go's NewIterator,
// which installs the resolver backed by internal/lvref).
func (it *Iterator) Value() []byte {
	return it.value
}

// Status returns the first error encountered, if any.
func (it *Iterator) Status() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Error()
}

// Close releases the iterator's resources.
func (it *Iterator) Close() error {
	return it.iter.Close()
}
