// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"log"
	"os"

	"github.com/cockroachdb/redact"
)

// Logger is the minimal logging interface the database writes diagnostics
// through (flush/compaction progress, repair corruption reports): a
// two-method interface wrapping stdlib log.Logger, rather than a pluggable
// third-party logging framework.
type Logger interface {
	Infof(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger writes to stderr via the standard library logger.
var DefaultLogger Logger = stdLogger{log.New(os.Stderr, "", log.LstdFlags)}

type stdLogger struct {
	*log.Logger
}

func (l stdLogger) Infof(format string, args ...interface{}) {
	l.Printf(format, args...)
}

func (l stdLogger) Fatalf(format string, args ...interface{}) {
	l.Printf(format, args...)
	os.Exit(1)
}

// RedactKey formats a user key for inclusion in a log message. The key bytes
// themselves are left unwrapped (and thus redactable); only the structural
// description around them is marked safe.
func RedactKey(key []byte) redact.RedactableString {
	return redact.Sprintf("key(%d bytes)=%x", redact.Safe(len(key)), key)
}
