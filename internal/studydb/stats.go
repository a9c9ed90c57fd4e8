// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package studydb

import (
	"context"

	"github.com/tomtom215/archivarius/internal/hashing"
)

// Stats summarizes one study's stored records without materializing
// them: trial counts by lifecycle state plus the number of benchmark
// records. Status surfaces and listings read this instead of loading
// every trial row just to count.
type Stats struct {
	Trials     int            `json:"trials"`
	ByState    map[string]int `json:"by_state"`
	Benchmarks int            `json:"benchmarks"`
}

// Stats returns counts for the given study. A study with no rows yields
// zero counts, not an error; ByState is always non-nil.
func (s *Store) Stats(ctx context.Context, studyHash hashing.Hash) (Stats, error) {
	stats := Stats{ByState: make(map[string]int)}

	err := s.withRetry(ctx, "stats", func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT state, COUNT(*) FROM trials WHERE study_hash = ? GROUP BY state`,
			studyHash.String())
		if err != nil {
			return err
		}
		defer closeQuietly(rows)

		stats.Trials = 0
		clear(stats.ByState)
		for rows.Next() {
			var state string
			var count int
			if err := rows.Scan(&state, &count); err != nil {
				return err
			}
			stats.ByState[state] = count
			stats.Trials += count
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM benchmarks WHERE study_hash = ?`,
			studyHash.String()).Scan(&stats.Benchmarks)
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}
