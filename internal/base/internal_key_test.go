// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInternalKeyOrder checks that, for keys sharing a user key,
// Compare(ik1, ik2) < 0 iff s1 > s2, or s1 == s2 and t1 > t2.
func TestInternalKeyOrder(t *testing.T) {
	icmp := &InternalKeyComparer{User: DefaultComparer}
	type pair struct {
		seq  SeqNum
		kind InternalKeyKind
	}
	pairs := []pair{
		{5, InternalKeyKindSet},
		{5, InternalKeyKindDelete},
		{3, InternalKeyKindSet},
		{10, InternalKeyKindLargeValueRef},
	}
	for _, a := range pairs {
		for _, b := range pairs {
			ik1 := MakeInternalKey([]byte("k"), a.seq, a.kind)
			ik2 := MakeInternalKey([]byte("k"), b.seq, b.kind)
			got := icmp.Compare(ik1, ik2) < 0
			want := a.seq > b.seq || (a.seq == b.seq && a.kind > b.kind)
			require.Equal(t, want, got, "a=%+v b=%+v", a, b)
		}
	}
}

func TestInternalKeyUserKeyOrdersFirst(t *testing.T) {
	icmp := &InternalKeyComparer{User: DefaultComparer}
	a := MakeInternalKey([]byte("a"), 1, InternalKeyKindSet)
	b := MakeInternalKey([]byte("b"), 100, InternalKeyKindSet)
	require.Less(t, icmp.Compare(a, b), 0)
}

func TestInternalKeyEncodeDecode(t *testing.T) {
	ik := MakeInternalKey([]byte("hello"), 12345, InternalKeyKindLargeValueRef)
	buf := ik.Encode(nil)
	require.Equal(t, ik.Size(), len(buf))
	got, err := DecodeInternalKey(buf)
	require.NoError(t, err)
	require.Equal(t, ik.UserKey, got.UserKey)
	require.Equal(t, ik.Trailer, got.Trailer)
	require.Equal(t, SeqNum(12345), got.SeqNum())
	require.Equal(t, InternalKeyKindLargeValueRef, got.Kind())
}

func TestDecodeInternalKeyTooShort(t *testing.T) {
	_, err := DecodeInternalKey([]byte("short"))
	require.Error(t, err)
}

// TestFindShortestSeparator checks the shortened separator still orders
// strictly between a and b.
func TestFindShortestSeparator(t *testing.T) {
	icmp := &InternalKeyComparer{User: DefaultComparer}
	a := MakeInternalKey([]byte("abcdefg"), 100, InternalKeyKindSet)
	b := MakeInternalKey([]byte("abzzz"), 1, InternalKeyKindSet)
	require.Less(t, icmp.Compare(a, b), 0)

	got := icmp.FindShortestSeparator(a, b)
	require.LessOrEqual(t, icmp.Compare(a, got), 0)
	require.Less(t, icmp.Compare(got, b), 0)
	require.LessOrEqual(t, len(got.UserKey), len(a.UserKey))
}

func TestFindShortestSeparatorNoShortening(t *testing.T) {
	// When a is a prefix of b, no shortening is possible; start is
	// returned unchanged.
	icmp := &InternalKeyComparer{User: DefaultComparer}
	a := MakeInternalKey([]byte("abc"), 100, InternalKeyKindSet)
	b := MakeInternalKey([]byte("abcd"), 1, InternalKeyKindSet)
	got := icmp.FindShortestSeparator(a, b)
	require.Equal(t, a.UserKey, got.UserKey)
	require.Equal(t, a.Trailer, got.Trailer)
}

func TestFindShortSuccessor(t *testing.T) {
	icmp := &InternalKeyComparer{User: DefaultComparer}
	key := MakeInternalKey([]byte("abc"), 100, InternalKeyKindSet)
	got := icmp.FindShortSuccessor(key)
	require.GreaterOrEqual(t, icmp.Compare(got, key), 0)

	allFF := MakeInternalKey([]byte{0xff, 0xff}, 100, InternalKeyKindSet)
	got2 := icmp.FindShortSuccessor(allFF)
	require.Equal(t, allFF.UserKey, got2.UserKey)
}
