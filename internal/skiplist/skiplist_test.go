// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package skiplist

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/stretchr/testify/require"
)

func icmp() *base.InternalKeyComparer {
	return &base.InternalKeyComparer{User: base.DefaultComparer}
}

func TestSkiplistInsertAndIterate(t *testing.T) {
	sl := New(icmp())
	perm := rand.New(rand.NewSource(1)).Perm(200)
	for _, i := range perm {
		k := base.MakeInternalKey([]byte(fmt.Sprintf("key-%04d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		sl.Insert(k, []byte(fmt.Sprintf("v%d", i)))
	}
	require.Equal(t, 200, sl.Len())

	it := NewIterator(sl)
	it.First()
	count := 0
	for it.Valid() {
		want := fmt.Sprintf("key-%04d", count)
		require.Equal(t, want, string(it.Key().UserKey))
		count++
		it.Next()
	}
	require.Equal(t, 200, count)
}

func TestSkiplistSeekGEAndPrev(t *testing.T) {
	sl := New(icmp())
	for i := 0; i < 10; i++ {
		k := base.MakeInternalKey([]byte(fmt.Sprintf("k%02d", i*2)), base.SeqNum(1), base.InternalKeyKindSet)
		sl.Insert(k, []byte{byte(i)})
	}
	it := NewIterator(sl)

	it.SeekGE([]byte("k05"))
	require.True(t, it.Valid())
	require.Equal(t, "k06", string(it.Key().UserKey))

	it.SeekLT([]byte("k06"))
	require.True(t, it.Valid())
	require.Equal(t, "k04", string(it.Key().UserKey))

	it.Last()
	require.True(t, it.Valid())
	require.Equal(t, "k18", string(it.Key().UserKey))
	require.True(t, it.Prev())
	require.Equal(t, "k16", string(it.Key().UserKey))
}

func TestSkiplistEmpty(t *testing.T) {
	sl := New(icmp())
	it := NewIterator(sl)
	it.First()
	require.False(t, it.Valid())
	it.Last()
	require.False(t, it.Valid())
}
