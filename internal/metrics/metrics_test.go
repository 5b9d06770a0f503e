// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotCounters(t *testing.T) {
	m, _ := New()
	m.RecordPut(time.Millisecond)
	m.RecordPut(2 * time.Millisecond)
	m.RecordDelete(time.Millisecond)
	m.RecordGet()
	m.RecordFlush()
	m.RecordCompaction(1024)

	s := m.Snapshot()
	require.Equal(t, int64(2), s.Puts)
	require.Equal(t, int64(1), s.Deletes)
	require.Equal(t, int64(1), s.Gets)
	require.Equal(t, int64(1), s.Flushes)
	require.Equal(t, int64(1), s.Compactions)
	require.Equal(t, int64(1024), s.BytesCompacted)
	require.True(t, s.CommitLatencyMax >= 2*time.Millisecond)
}
