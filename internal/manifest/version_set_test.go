// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/vfs"
	"github.com/stretchr/testify/require"
)

// TestLogAndApplyThenRecover exercises the version set's Create →
// LogAndApply → Recover cycle end to end over an in-memory filesystem,
// checking that monotonic
// file numbers and non-decreasing last_sequence survive a round trip.
func TestLogAndApplyThenRecover(t *testing.T) {
	fs := vfs.NewMem()
	icmp := &base.InternalKeyComparer{User: base.DefaultComparer}
	require.NoError(t, fs.MkdirAll("/db"))

	vs := NewVersionSet("/db", fs, icmp)
	require.NoError(t, vs.Create(icmp.User.Name))

	fileNum := vs.NewFileNumber()
	meta := &FileMetadata{
		FileNum:        fileNum,
		Size:           4096,
		Smallest:       base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet),
		Largest:        base.MakeInternalKey([]byte("m"), 1, base.InternalKeyKindSet),
		SmallestSeqNum: 1,
		LargestSeqNum:  1,
	}
	edit := &VersionEdit{
		NewFiles:     []NewFileEntry{{Level: 0, Meta: meta}},
		LastSequence: 1,
		NextFileNum:  fileNum + 1,
	}
	require.NoError(t, vs.LogAndApply(edit))
	require.Equal(t, 1, vs.NumLevelFiles(0))
	require.Equal(t, base.SeqNum(1), vs.LastSequence())

	vs2 := NewVersionSet("/db", fs, icmp)
	require.NoError(t, vs2.Recover(icmp.User.Name))
	require.Equal(t, 1, vs2.NumLevelFiles(0))
	require.Equal(t, base.SeqNum(1), vs2.LastSequence())
	require.GreaterOrEqual(t, vs2.NewFileNumber(), vs.NewFileNumber())
}

func TestRecoverRejectsMismatchedComparator(t *testing.T) {
	fs := vfs.NewMem()
	icmp := &base.InternalKeyComparer{User: base.DefaultComparer}
	require.NoError(t, fs.MkdirAll("/db"))

	vs := NewVersionSet("/db", fs, icmp)
	require.NoError(t, vs.Create(icmp.User.Name))

	other := &base.InternalKeyComparer{User: &base.Comparer{Compare: base.DefaultComparer.Compare, Name: "other"}}
	vs2 := NewVersionSet("/db", fs, other)
	err := vs2.Recover("other")
	require.Error(t, err)
}
