// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	records := [][]byte{
		[]byte("short"),
		[]byte(""),
		bytes.Repeat([]byte("x"), blockSize*3+17), // spans multiple blocks
		[]byte("trailing"),
	}
	for _, r := range records {
		require.NoError(t, w.WriteRecord(r))
	}

	r := NewReader(&buf)
	for _, want := range records {
		got, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestWriterPadsBlockBoundary(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	// A record sized so the next record's header wouldn't fit in the
	// remainder of the block, forcing a pad-and-roll.
	first := bytes.Repeat([]byte("a"), blockSize-headerSize-3)
	require.NoError(t, w.WriteRecord(first))
	require.NoError(t, w.WriteRecord([]byte("second")))

	r := NewReader(&buf)
	got, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, first, got)
	got, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)
}

func TestReaderReportsCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteRecord([]byte("good")))

	corrupted := buf.Bytes()
	// Flip a byte inside the payload of the single full-type record to
	// break its checksum.
	corrupted[len(corrupted)-1] ^= 0xff

	var reasons []string
	r := NewReader(bytes.NewReader(corrupted))
	r.SetCorruptionReporter(func(reason string) { reasons = append(reasons, reason) })
	_, err := r.Next()
	require.Error(t, err)
	require.NotEmpty(t, reasons)
}
