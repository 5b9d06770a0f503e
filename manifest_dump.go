// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import "github.com/lsmkv/lsmkv/internal/manifest"

// LevelFile summarizes one sstable in the live version, the unit cmd/ldb's
// manifest-dump subcommand renders as a table row.
type LevelFile struct {
	FileNum  uint64
	Size     uint64
	Smallest string
	Largest  string
}

// NumLevels is the number of on-disk levels a database maintains.
const NumLevels = manifest.NumLevels

// ManifestDump returns every live sstable, grouped by level, for
// introspection tools such as cmd/ldb's manifest-dump subcommand.
func (d *DB) ManifestDump() [NumLevels][]LevelFile {
	d.mu.Lock()
	current := d.mu.versions.Current()
	current.Ref()
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		current.Unref()
		d.mu.Unlock()
	}()

	var out [NumLevels][]LevelFile
	for level, files := range current.Levels {
		for _, f := range files {
			out[level] = append(out[level], LevelFile{
				FileNum:  uint64(f.FileNum),
				Size:     f.Size,
				Smallest: string(f.Smallest.UserKey),
				Largest:  string(f.Largest.UserKey),
			})
		}
	}
	return out
}
