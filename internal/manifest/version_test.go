// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bytes"
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/stretchr/testify/require"
)

func fileAt(smallest, largest string) *FileMetadata {
	return &FileMetadata{
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.InternalKeyKindSet),
	}
}

func TestVersionOverlaps(t *testing.T) {
	v := &Version{}
	v.Levels[1] = []*FileMetadata{
		fileAt("a", "c"),
		fileAt("d", "f"),
		fileAt("g", "i"),
	}

	got := v.Overlaps(1, bytes.Compare, []byte("e"), []byte("h"))
	require.Len(t, got, 2)
	require.Equal(t, "d", string(got[0].Smallest.UserKey))
	require.Equal(t, "g", string(got[1].Smallest.UserKey))
}

func TestVersionOverlapsNone(t *testing.T) {
	v := &Version{}
	v.Levels[1] = []*FileMetadata{fileAt("a", "c")}

	got := v.Overlaps(1, bytes.Compare, []byte("x"), []byte("z"))
	require.Empty(t, got)
}

func TestVersionNumLevelFiles(t *testing.T) {
	v := &Version{}
	v.Levels[0] = []*FileMetadata{fileAt("a", "b"), fileAt("c", "d")}
	require.Equal(t, 2, v.NumLevelFiles(0))
	require.Equal(t, 0, v.NumLevelFiles(1))
}
