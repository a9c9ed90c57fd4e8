// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/archivarius/internal/hashing"
)

// Fixed names inside a study folder. Other tooling depends on this
// layout, so these never change within a schema generation.
const (
	StudyDBName   = "study.db"
	TrialMetaName = "trial_meta.json"
	CheckpointDir = "checkpoint"
	RefitDirName  = "refit"

	studyDirPrefix = "study-"
	trialDirPrefix = "trial-"
)

// StudyDirName returns the directory name for a study folder,
// e.g. "study-1f0c93ab".
func StudyDirName(h hashing.Hash) string {
	return studyDirPrefix + h.Short(hashing.ShortTokenLen)
}

// TrialDirName returns the directory name for a trial folder,
// e.g. "trial-7be301d2".
func TrialDirName(h hashing.Hash) string {
	return trialDirPrefix + h.Short(hashing.ShortTokenLen)
}

// IsStudyDirName reports whether name looks like a study folder and
// returns the embedded short token.
func IsStudyDirName(name string) (token string, ok bool) {
	return prefixedDirToken(name, studyDirPrefix)
}

// IsTrialDirName reports whether name looks like a trial folder and
// returns the embedded short token.
func IsTrialDirName(name string) (token string, ok bool) {
	return prefixedDirToken(name, trialDirPrefix)
}

func prefixedDirToken(name, prefix string) (string, bool) {
	if len(name) != len(prefix)+hashing.ShortTokenLen {
		return "", false
	}
	if name[:len(prefix)] != prefix {
		return "", false
	}
	token := name[len(prefix):]
	for _, c := range token {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", false
		}
	}
	return token, true
}

// StudyDBPath returns the study metadata store inside a study folder.
func StudyDBPath(studyDir string) string {
	return filepath.Join(studyDir, StudyDBName)
}

// TrialMetaPath returns the sidecar document inside a trial folder.
func TrialMetaPath(trialDir string) string {
	return filepath.Join(trialDir, TrialMetaName)
}

// CheckpointPath returns the checkpoint directory inside a trial folder.
func CheckpointPath(trialDir string) string {
	return filepath.Join(trialDir, CheckpointDir)
}

// RefitCheckpointPath returns the checkpoint directory of a trial's
// refit run.
func RefitCheckpointPath(trialDir string) string {
	return filepath.Join(trialDir, RefitDirName, CheckpointDir)
}

// EnsureDir creates dir and any missing parents. Safe to call when the
// directory already exists.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
