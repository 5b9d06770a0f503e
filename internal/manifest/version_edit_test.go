// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/lvref"
	"github.com/stretchr/testify/require"
)

func TestVersionEditEmptyRoundTrip(t *testing.T) {
	var ve VersionEdit
	var buf bytes.Buffer
	require.NoError(t, ve.Encode(&buf))
	require.Empty(t, buf.Bytes())

	var got VersionEdit
	require.NoError(t, got.Decode(bytes.NewReader(buf.Bytes())))
	require.Equal(t, VersionEdit{}, got)
}

func TestVersionEditRoundTrip(t *testing.T) {
	ve := VersionEdit{
		ComparatorName: "lsmkv.BytewiseComparator",
		NextFileNum:    42,
		LastSequence:   100,
		DeletedFiles: map[DeletedFileEntry]bool{
			{Level: 0, FileNum: 3}: true,
		},
		NewFiles: []NewFileEntry{
			{
				Level: 1,
				Meta: &FileMetadata{
					FileNum:        7,
					Size:           1024,
					Smallest:       base.MakeInternalKey([]byte("a"), 10, base.InternalKeyKindSet),
					Largest:        base.MakeInternalKey([]byte("z"), 5, base.InternalKeyKindDelete),
					SmallestSeqNum: 5,
					LargestSeqNum:  10,
				},
			},
		},
		LargeValueRefs: []lvref.Ref{lvref.Make([]byte("blob"), base.NoCompression)},
	}

	var buf bytes.Buffer
	require.NoError(t, ve.Encode(&buf))

	var got VersionEdit
	require.NoError(t, got.Decode(bytes.NewReader(buf.Bytes())))

	require.Equal(t, ve.ComparatorName, got.ComparatorName)
	require.Equal(t, ve.NextFileNum, got.NextFileNum)
	require.Equal(t, ve.LastSequence, got.LastSequence)
	require.Equal(t, ve.DeletedFiles, got.DeletedFiles)
	require.Len(t, got.NewFiles, 1)
	require.Equal(t, ve.NewFiles[0].Level, got.NewFiles[0].Level)
	require.Equal(t, ve.NewFiles[0].Meta.FileNum, got.NewFiles[0].Meta.FileNum)
	require.Equal(t, ve.NewFiles[0].Meta.Size, got.NewFiles[0].Meta.Size)
	require.Equal(t, ve.LargeValueRefs, got.LargeValueRefs)
}

func TestVersionEditUnknownTagIsCorruption(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xfe, 0x01}) // uvarint tag 254, never assigned
	var ve VersionEdit
	err := ve.Decode(&buf)
	require.Error(t, err)
}

// TestVersionApplyEnforcesNonOverlap checks that level ≥ 1 files stay
// sorted and non-overlapping after folding an edit.
func TestVersionApplyEnforcesNonOverlap(t *testing.T) {
	mk := func(small, large string, num FileNum) *FileMetadata {
		return &FileMetadata{
			FileNum:  num,
			Smallest: base.MakeInternalKey([]byte(small), 1, base.InternalKeyKindSet),
			Largest:  base.MakeInternalKey([]byte(large), 1, base.InternalKeyKindSet),
		}
	}
	edit := &VersionEdit{
		NewFiles: []NewFileEntry{
			{Level: 1, Meta: mk("a", "m", 1)},
			{Level: 1, Meta: mk("g", "z", 2)}, // overlaps [a,m]
		},
	}
	_, err := Apply(nil, edit, base.DefaultComparer.Compare)
	require.Error(t, err)
}

func TestVersionApplyOrdersLevel1BySmallest(t *testing.T) {
	mk := func(small, large string, num FileNum) *FileMetadata {
		return &FileMetadata{
			FileNum:  num,
			Smallest: base.MakeInternalKey([]byte(small), 1, base.InternalKeyKindSet),
			Largest:  base.MakeInternalKey([]byte(large), 1, base.InternalKeyKindSet),
		}
	}
	edit := &VersionEdit{
		NewFiles: []NewFileEntry{
			{Level: 1, Meta: mk("m", "z", 2)},
			{Level: 1, Meta: mk("a", "f", 1)},
		},
	}
	v, err := Apply(nil, edit, base.DefaultComparer.Compare)
	require.NoError(t, err)
	require.Len(t, v.Levels[1], 2)
	require.Equal(t, FileNum(1), v.Levels[1][0].FileNum)
	require.Equal(t, FileNum(2), v.Levels[1][1].FileNum)
}
