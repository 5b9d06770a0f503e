// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FileType enumerates the kinds of file a database directory holds:
// log, table, descriptor, large-value, or other. Grounded on the
// dbFilename/parseDBFilename pair in
// _examples/ariesdevil-pebble/open.go's callers.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeLog
	FileTypeLock
	FileTypeTable
	FileTypeManifest
	FileTypeCurrent
	FileTypeLargeValue
	FileTypeTemp
)

// MakeFilename returns the conventional on-disk name for a file of the
// given type and number (FileTypeCurrent and FileTypeLock ignore the
// number). It must not be called with FileTypeLargeValue — large-value
// files are content-addressed ("<hex40>-<size>-<ctype>"), not
// numbered; use LargeValueFilename instead.
func MakeFilename(fileType FileType, dirname string, fileNum uint64) string {
	name := baseFilename(fileType, fileNum)
	if dirname == "" {
		return name
	}
	return dirname + "/" + name
}

// LargeValueFilename returns the content-addressed name of a large-value
// file, "<hex40>-<size>-<ctype>" — the same string
// internal/lvref.Ref.String produces, so two values with identical bytes
// and compression type collapse onto the same file.
func LargeValueFilename(dirname string, ref string) string {
	if dirname == "" {
		return ref
	}
	return dirname + "/" + ref
}

func baseFilename(fileType FileType, fileNum uint64) string {
	switch fileType {
	case FileTypeLog:
		return fmt.Sprintf("%06d.log", fileNum)
	case FileTypeLock:
		return "LOCK"
	case FileTypeTable:
		return fmt.Sprintf("%06d.sst", fileNum)
	case FileTypeManifest:
		return fmt.Sprintf("MANIFEST-%06d", fileNum)
	case FileTypeCurrent:
		return "CURRENT"
	case FileTypeTemp:
		return fmt.Sprintf("%06d.dbtmp", fileNum)
	default:
		return ""
	}
}

// largeValuePattern matches the content-addressed large-value filename:
// 40 lowercase hex digits, a decimal size, a decimal compression type.
var largeValuePattern = regexp.MustCompile(`^[0-9a-f]{40}-[0-9]+-[0-9]+$`)

// ParseFilename is the inverse of MakeFilename's base name logic: it
// classifies name and, for numbered file types, extracts the file number.
// Names it doesn't recognize report FileTypeUnknown, "Unrecognized
// names are ignored." Large-value files are recognized by their
// content-addressed shape and report fileNum 0, since they carry no file
// number ("highest numeric suffix" bound for next_file_number
// simply doesn't apply to them).
func ParseFilename(name string) (fileType FileType, fileNum uint64, ok bool) {
	switch {
	case name == "CURRENT":
		return FileTypeCurrent, 0, true
	case name == "LOCK":
		return FileTypeLock, 0, true
	case strings.HasPrefix(name, "MANIFEST-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "MANIFEST-"), 10, 64)
		if err != nil {
			return FileTypeUnknown, 0, false
		}
		return FileTypeManifest, n, true
	case strings.HasSuffix(name, ".log"):
		return parseNumbered(name, ".log", FileTypeLog)
	case strings.HasSuffix(name, ".sst"):
		return parseNumbered(name, ".sst", FileTypeTable)
	case strings.HasSuffix(name, ".dbtmp"):
		return parseNumbered(name, ".dbtmp", FileTypeTemp)
	case largeValuePattern.MatchString(name):
		return FileTypeLargeValue, 0, true
	default:
		return FileTypeUnknown, 0, false
	}
}

func parseNumbered(name, suffix string, fileType FileType) (FileType, uint64, bool) {
	digits := strings.TrimSuffix(name, suffix)
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return FileTypeUnknown, 0, false
	}
	return fileType, n, true
}
