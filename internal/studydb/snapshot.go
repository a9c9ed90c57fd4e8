// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotTo writes a consistent copy of the database to destPath using
// VACUUM INTO. The copy is a standalone SQLite file safe to upload while
// the live database keeps accepting writes; WAL content is folded in.
//
// VACUUM INTO refuses to overwrite, so any stale snapshot at destPath is
// removed first. The write itself is atomic from the reader's point of
// view because SQLite builds the file in a transaction.
func (s *Store) SnapshotTo(ctx context.Context, destPath string) error {
	if destPath == "" {
		return fmt.Errorf("snapshot destination path is empty")
	}
	if destPath == s.path {
		return fmt.Errorf("snapshot destination equals live database path %s", s.path)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot %s: %w", destPath, err)
	}

	return s.withRetry(ctx, "snapshot", func() error {
		_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath)
		if err != nil {
			return fmt.Errorf("vacuum into %s: %w", destPath, err)
		}
		return nil
	})
}
