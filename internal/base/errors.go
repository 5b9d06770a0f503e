// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// Sentinel errors for the error taxonomy: NotFound, Corruption,
// InvalidArgument, NotSupported, plus Closed. OK is the absence of an
// error; IOError has no sentinel and is the underlying I/O error wrapped
// by IOErrorf. NotFound is reserved for missing keys; missing files are
// IOError or Corruption depending on context.
var (
	// ErrNotFound means the requested key does not exist in the database.
	ErrNotFound = errors.New("lsmkv: not found")
	// ErrCorruption means an on-disk record failed a checksum or could not
	// be parsed, or an invariant was violated by on-disk state.
	ErrCorruption = errors.New("lsmkv: corruption")
	// ErrInvalidArgument means the caller passed a malformed argument.
	ErrInvalidArgument = errors.New("lsmkv: invalid argument")
	// ErrNotSupported means the requested operation isn't implemented.
	ErrNotSupported = errors.New("lsmkv: not supported")
	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("lsmkv: closed")
)

// CorruptionErrorf wraps a formatted error, marking it as ErrCorruption so
// callers can test with errors.Is(err, base.ErrCorruption).
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// IOErrorf wraps an I/O failure with additional context, preserving the
// original error for errors.Is/errors.As.
func IOErrorf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
