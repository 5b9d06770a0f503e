// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"github.com/lsmkv/lsmkv/internal/base"
)

// Version is an immutable snapshot of the live table catalog: which files
// exist at each level. Level 0 files may overlap in key range and are kept
// in arrival order; level ≥ 1 files are sorted and non-overlapping.
type Version struct {
	Levels [NumLevels][]*FileMetadata
}

// Ref increments the reference count of every file in the version. Called
// whenever a Version is installed as the live version or handed to an
// iterator/snapshot that must keep its files from being deleted.
func (v *Version) Ref() {
	for _, files := range v.Levels {
		for _, f := range files {
			f.Ref()
		}
	}
}

// Unref decrements the reference count of every file in the version,
// returning the file numbers that reached zero and are now safe to delete
// from disk.
func (v *Version) Unref() []FileNum {
	var zombies []FileNum
	for _, files := range v.Levels {
		for _, f := range files {
			if f.Unref() {
				zombies = append(zombies, f.FileNum)
			}
		}
	}
	return zombies
}

// NumLevelFiles returns the file count at level, backing the public
// num-files-at-level<N> property.
func (v *Version) NumLevelFiles(level int) int {
	return len(v.Levels[level])
}

// Overlaps returns every file at level whose user-key range intersects
// [start, end], used by the compaction scheduler to find a
// compaction's level+1 inputs.
func (v *Version) Overlaps(level int, cmp base.Compare, start, end []byte) []*FileMetadata {
	var result []*FileMetadata
	for _, f := range v.Levels[level] {
		if cmp(f.Largest.UserKey, start) < 0 || cmp(f.Smallest.UserKey, end) > 0 {
			continue
		}
		result = append(result, f)
	}
	return result
}

// Apply folds edit into curr (which may be nil, equivalent to an empty
// version) producing a new Version. It enforces that level ≥ 1 files stay
// sorted and non-overlapping.
func Apply(curr *Version, edit *VersionEdit, cmp base.Compare) (*Version, error) {
	v := new(Version)
	for level := 0; level < NumLevels; level++ {
		var currFiles []*FileMetadata
		if curr != nil {
			currFiles = curr.Levels[level]
		}
		deleted := edit.deletedAtLevel(level)
		var added []*FileMetadata
		for _, nf := range edit.NewFiles {
			if nf.Level == level {
				added = append(added, nf.Meta)
			}
		}
		if len(added) == 0 && len(deleted) == 0 {
			v.Levels[level] = currFiles
			continue
		}

		kept := make([]*FileMetadata, 0, len(currFiles)+len(added))
		for _, f := range currFiles {
			if !deleted[f.FileNum] {
				kept = append(kept, f)
			}
		}
		for _, f := range added {
			if !deleted[f.FileNum] {
				kept = append(kept, f)
			}
		}

		if level == 0 {
			SortByFileNum(kept)
		} else {
			SortBySmallest(kept, cmp)
			if err := checkNonOverlapping(kept, cmp); err != nil {
				return nil, err
			}
		}
		v.Levels[level] = kept
	}
	return v, nil
}

func (e *VersionEdit) deletedAtLevel(level int) map[FileNum]bool {
	if len(e.DeletedFiles) == 0 {
		return nil
	}
	m := make(map[FileNum]bool)
	for d := range e.DeletedFiles {
		if d.Level == level {
			m[d.FileNum] = true
		}
	}
	return m
}

// checkNonOverlapping enforces, for a sorted (by smallest) slice of
// level ≥ 1 files, that consecutive files must not overlap in
// internal-key range.
func checkNonOverlapping(files []*FileMetadata, cmp base.Compare) error {
	for i := 1; i < len(files); i++ {
		if base.InternalCompare(cmp, files[i-1].Largest, files[i].Smallest) >= 0 {
			return base.CorruptionErrorf(
				"lsmkv: level files %d and %d have overlapping ranges",
				files[i-1].FileNum, files[i].FileNum)
		}
	}
	return nil
}
