// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"encoding/binary"
)

// InternalKeyKind enumerates the value types an internal key trailer can
// carry. The set is closed and small — unlike upstream Pebble, there is
// no Merge kind, since this engine's vtype domain is exactly {Value,
// Deletion, LargeValueRef}.
type InternalKeyKind uint8

const (
	// InternalKeyKindDelete marks the key as a tombstone.
	InternalKeyKindDelete InternalKeyKind = 0
	// InternalKeyKindSet stores the value inline.
	InternalKeyKindSet InternalKeyKind = 1
	// InternalKeyKindLargeValueRef stores an lvref.Ref in place of
	// the value.
	InternalKeyKindLargeValueRef InternalKeyKind = 2

	// InternalKeyKindMax is the numerically largest defined kind.
	InternalKeyKindMax = InternalKeyKindLargeValueRef

	// InternalKeyKindForSeek is the sentinel value-type-for-seek: the
	// numerically largest kind, used so that a lookup key built with
	// (seq, KindForSeek) sorts before any real entry with the same
	// (ukey, seq).
	InternalKeyKindForSeek = InternalKeyKindMax
)

func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	case InternalKeyKindLargeValueRef:
		return "LARGEVALUEREF"
	default:
		return "UNKNOWN"
	}
}

// SeqNum is a 56-bit monotonically increasing sequence number assigned per
// write operation within a batch.
type SeqNum uint64

// SeqNumMax is the largest sequence number representable in 56 bits:
// seq ≤ 2^56 − 1.
const SeqNumMax SeqNum = 1<<56 - 1

// trailerLen is the fixed width of the packed (seq, kind) trailer.
const trailerLen = 8

// packTrailer implements `pack(seq, vtype) = (seq << 8) | vtype`.
func packTrailer(seq SeqNum, kind InternalKeyKind) uint64 {
	return (uint64(seq) << 8) | uint64(kind)
}

func unpackTrailer(trailer uint64) (SeqNum, InternalKeyKind) {
	return SeqNum(trailer >> 8), InternalKeyKind(trailer & 0xff)
}

// InternalKey is the concatenation ukey || pack(seq, kind).
type InternalKey struct {
	UserKey []byte
	Trailer uint64
}

// MakeInternalKey builds an InternalKey from its parts.
func MakeInternalKey(userKey []byte, seq SeqNum, kind InternalKeyKind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: packTrailer(seq, kind)}
}

// SeqNum returns the key's sequence number.
func (k InternalKey) SeqNum() SeqNum {
	seq, _ := unpackTrailer(k.Trailer)
	return seq
}

// Kind returns the key's value type.
func (k InternalKey) Kind() InternalKeyKind {
	_, kind := unpackTrailer(k.Trailer)
	return kind
}

// SetKind rewrites the key's value type in place, keeping the sequence
// number. Used by the compaction iterator.
func (k *InternalKey) SetKind(kind InternalKeyKind) {
	seq, _ := unpackTrailer(k.Trailer)
	k.Trailer = packTrailer(seq, kind)
}

// Size returns the encoded length of the key.
func (k InternalKey) Size() int {
	return len(k.UserKey) + trailerLen
}

// Encode appends the wire encoding of k to dst: ukey followed by the 8
// little-endian trailer bytes ("Encode").
func (k InternalKey) Encode(dst []byte) []byte {
	dst = append(dst, k.UserKey...)
	return PutFixed64(dst, k.Trailer)
}

// Clone returns a deep copy of k.
func (k InternalKey) Clone() InternalKey {
	u := make([]byte, len(k.UserKey))
	copy(u, k.UserKey)
	return InternalKey{UserKey: u, Trailer: k.Trailer}
}

// DecodeInternalKey decodes an internal key from its wire encoding. It
// fails if the buffer is shorter than the trailer or the trailer names an
// unknown kind.
func DecodeInternalKey(buf []byte) (InternalKey, error) {
	if len(buf) < trailerLen {
		return InternalKey{}, CorruptionErrorf("lsmkv: internal key too short")
	}
	n := len(buf) - trailerLen
	trailer := binary.LittleEndian.Uint64(buf[n:])
	if InternalKeyKind(trailer&0xff) > InternalKeyKindMax {
		return InternalKey{}, CorruptionErrorf("lsmkv: invalid internal key kind")
	}
	return InternalKey{UserKey: buf[:n], Trailer: trailer}, nil
}

// ExtractUserKey returns the user-key prefix of an encoded internal key
// without fully decoding it.
func ExtractUserKey(buf []byte) []byte {
	if len(buf) < trailerLen {
		return buf
	}
	return buf[:len(buf)-trailerLen]
}

// Compare is the user-supplied total order over raw keys.
type Compare func(a, b []byte) int

// Comparer bundles the user comparator together with the two shortening
// hooks used to build compact separator keys for index blocks and
// manifest edits.
type Comparer struct {
	Compare Compare
	// Name is the comparator's stable, persisted name ("The
	// comparator's stable name must be exposed").
	Name string
	// FindShortestSeparator returns a key in [a, b) that is <= in length to
	// a, used to shrink index-block separators.
	FindShortestSeparator func(dst, a, b []byte) []byte
	// FindShortSuccessor returns a short key >= a, used for the last key
	// in a range.
	FindShortSuccessor func(dst, a []byte) []byte
}

// DefaultComparer is the default bytewise comparator.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Name:    "lsmkv.BytewiseComparator",
	FindShortestSeparator: func(dst, a, b []byte) []byte {
		return shortestSeparator(dst, a, b)
	},
	FindShortSuccessor: func(dst, a []byte) []byte {
		return shortSuccessor(dst, a)
	},
}

// shortestSeparator returns the shortest byte string in [a, b) (assuming
// a < b), following the classic leveldb algorithm: find the first
// differing byte, and if it can be incremented while staying < b, truncate
// there.
func shortestSeparator(dst, a, b []byte) []byte {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	diff := 0
	for diff < minLen && a[diff] == b[diff] {
		diff++
	}
	if diff >= minLen {
		// One is a prefix of the other; no shortening possible.
		return append(dst, a...)
	}
	if a[diff] < 0xff && a[diff]+1 < b[diff] {
		dst = append(dst, a[:diff+1]...)
		dst[len(dst)-1]++
		return dst
	}
	return append(dst, a...)
}

// shortSuccessor returns a short string >= a: the first byte that isn't
// 0xff, incremented, with everything after it dropped.
func shortSuccessor(dst, a []byte) []byte {
	for i := 0; i < len(a); i++ {
		if a[i] != 0xff {
			dst = append(dst, a[:i+1]...)
			dst[len(dst)-1]++
			return dst
		}
	}
	// a is all 0xff bytes; no shortening possible.
	return append(dst, a...)
}

// InternalKeyComparer wraps a user Comparer to produce the InternalKeyCompare
// used throughout the engine. Its Name is
// persisted in the manifest; requires refusing to open a database
// whose recorded comparator name disagrees with the configured one.
type InternalKeyComparer struct {
	User *Comparer
}

// Name is the comparator's stable, persisted name, e.g.
// "InternalKeyComparator".
func (c *InternalKeyComparer) Name() string {
	return "lsmkv.InternalKeyComparator"
}

// Compare implements the internal-key order: ascending by ukey, then
// descending by seq, then descending by kind. The trailer is compared as
// a reversed-sense 64-bit unsigned integer.
func (c *InternalKeyComparer) Compare(a, b InternalKey) int {
	if r := c.User.Compare(a.UserKey, b.UserKey); r != 0 {
		return r
	}
	switch {
	case a.Trailer > b.Trailer:
		return -1
	case a.Trailer < b.Trailer:
		return 1
	default:
		return 0
	}
}

// InternalCompare compares two internal keys by user key, then by trailer
// descending, without splitting the trailer into (seq, kind) first — used
// in hot paths (sstable/skiplist).
func InternalCompare(ucmp Compare, a, b InternalKey) int {
	if r := ucmp(a.UserKey, b.UserKey); r != 0 {
		return r
	}
	switch {
	case a.Trailer > b.Trailer:
		return -1
	case a.Trailer < b.Trailer:
		return 1
	default:
		return 0
	}
}

// FindShortestSeparator extracts the user keys of start/limit, asks the
// user comparator to shorten within (ukey(start), ukey(limit)), and only
// rewrites start if the shortened key strictly exceeds ukey(start) —
// comparing the *extracted user portions*, avoiding a historical bug
// where the shortened candidate was compared against the full,
// still-untruncated internal key.
func (c *InternalKeyComparer) FindShortestSeparator(start InternalKey, limit InternalKey) InternalKey {
	userStart := start.UserKey
	userLimit := limit.UserKey
	tmp := c.User.FindShortestSeparator(nil, userStart, userLimit)
	if c.User.Compare(userStart, tmp) < 0 {
		return MakeInternalKey(tmp, SeqNumMax, InternalKeyKindForSeek)
	}
	return start
}

// FindShortSuccessor implements FindShortSuccessor: shortens
// the user portion upward; if it grew, the trailer becomes
// pack(MaxSeq, ValueTypeForSeek).
func (c *InternalKeyComparer) FindShortSuccessor(key InternalKey) InternalKey {
	userKey := key.UserKey
	tmp := c.User.FindShortSuccessor(nil, userKey)
	if c.User.Compare(userKey, tmp) < 0 {
		return MakeInternalKey(tmp, SeqNumMax, InternalKeyKindForSeek)
	}
	return key
}
