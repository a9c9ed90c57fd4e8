// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/daemon"
	"github.com/tomtom215/archivarius/internal/hashing"
	"github.com/tomtom215/archivarius/internal/models"
	"github.com/tomtom215/archivarius/internal/paths"
	"github.com/tomtom215/archivarius/internal/studydb"
)

// storeConfig converts the study metadata store section of the
// configuration into the store's own config type.
func storeConfig(cfg config.StudyDBConfig) studydb.Config {
	return studydb.Config{
		BusyTimeout:    cfg.BusyTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}
}

// forEachStudy opens every initialized study store under the artifact
// root and calls fn once per persisted study. Directories without a
// study.db are skipped; a trial process may create the folder before
// the first metadata write lands. The store handle passed to fn is
// closed when fn returns.
func forEachStudy(ctx context.Context, cfg *config.Config, fn func(dir string, store *studydb.Store, study models.Study) error) error {
	dirs, err := daemon.DiscoverStudies(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("discover studies under %s: %w", cfg.Storage.Root, err)
	}

	dbCfg := storeConfig(cfg.StudyDB)
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		dbPath := paths.StudyDBPath(dir)
		if _, err := os.Stat(dbPath); err != nil {
			continue
		}

		store, err := studydb.Open(ctx, dbPath, dbCfg)
		if err != nil {
			return fmt.Errorf("open study store %s: %w", dbPath, err)
		}

		studies, err := store.ListStudies(ctx)
		if err == nil {
			for _, study := range studies {
				if err = fn(dir, store, study); err != nil {
					break
				}
			}
		}
		closeErr := store.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return fmt.Errorf("close study store %s: %w", dbPath, closeErr)
		}
	}
	return nil
}

// studyRef pairs a persisted study with the directory it lives in.
type studyRef struct {
	Dir   string       `json:"dir"`
	Study models.Study `json:"study"`
}

// findStudy resolves a study argument to its directory and record. The
// argument may be the full 64-hex study hash, the 8-char short token
// used in directory names, or the study name. Token and name lookups
// can be ambiguous across studies; ambiguity is an error rather than a
// silent first match.
func findStudy(ctx context.Context, cfg *config.Config, arg string) (studyRef, error) {
	var matches []studyRef

	fullHash, fullErr := hashing.ParseHash(arg)
	token := strings.ToLower(arg)

	err := forEachStudy(ctx, cfg, func(dir string, _ *studydb.Store, study models.Study) error {
		switch {
		case fullErr == nil && study.StudyHash == fullHash:
			matches = append(matches, studyRef{Dir: dir, Study: study})
		case study.StudyHash.Short(hashing.ShortTokenLen) == token:
			matches = append(matches, studyRef{Dir: dir, Study: study})
		case study.Name == arg:
			matches = append(matches, studyRef{Dir: dir, Study: study})
		}
		return nil
	})
	if err != nil {
		return studyRef{}, err
	}

	switch len(matches) {
	case 0:
		return studyRef{}, fmt.Errorf("study %q not found under %s", arg, cfg.Storage.Root)
	case 1:
		return matches[0], nil
	default:
		tokens := make([]string, len(matches))
		for i, m := range matches {
			tokens[i] = m.Study.StudyHash.Short(hashing.ShortTokenLen)
		}
		return studyRef{}, fmt.Errorf("study %q is ambiguous, matches %s", arg, strings.Join(tokens, ", "))
	}
}

// openStudyStore opens the metadata store for one study directory.
func openStudyStore(ctx context.Context, cfg *config.Config, dir string) (*studydb.Store, error) {
	return studydb.Open(ctx, paths.StudyDBPath(dir), storeConfig(cfg.StudyDB))
}
