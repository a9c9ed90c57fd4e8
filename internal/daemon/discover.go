// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package daemon

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/tomtom215/archivarius/internal/paths"
)

// DiscoverStudies walks the artifact tree and returns every study
// directory under root, identified by folder name. Path templates are
// configurable, so study folders may sit at any depth; the walk does
// not descend into a study folder once found.
//
// WalkDir visits entries in lexical order, so the result is
// deterministic for a given tree.
func DiscoverStudies(root string) ([]string, error) {
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := paths.IsStudyDirName(d.Name()); ok {
			dirs = append(dirs, path)
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover studies under %s: %w", root, err)
	}

	return dirs, nil
}
