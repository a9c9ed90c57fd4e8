// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

/* synchronizer.go - Idempotent local-to-remote artifact mirroring
 *
 * The synchronizer rebases paths under the local artifact root onto the
 * remote root and copies in whichever direction the caller asks, one
 * file at a time. A file is copied only when the destination is absent,
 * older at second granularity, or a different size; everything else is
 * a no-op, so running a sync twice performs exactly one write.
 *
 * Classification of "already remote" is a lexical prefix test on the
 * cleaned path. It must never be derived by mapping the path and
 * checking for a no-op: the mapper may have rewritten a local path into
 * a remote-shaped one earlier in the pipeline, and a no-op mapping
 * would then be mistaken for an existing backup.
 */

package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/archivarius/internal/config"
	"github.com/tomtom215/archivarius/internal/logging"
	"github.com/tomtom215/archivarius/internal/metrics"
)

// ErrRemoteSync wraps remote storage failures that survived retries.
// Backup is best-effort: callers log these as warnings and continue.
var ErrRemoteSync = errors.New("remote sync failed")

// Action describes what a sync or restore invocation did.
type Action string

const (
	ActionUploaded         Action = "uploaded"
	ActionDownloaded       Action = "downloaded"
	ActionUpToDate         Action = "up-to-date"
	ActionSkippedRemote    Action = "skipped-remote-path"
	ActionExcluded         Action = "excluded"
	ActionNothingToRestore Action = "nothing-to-restore"
)

// SyncResult reports the outcome of one sync or restore invocation.
// Files counts copies actually performed; a tree invocation with zero
// copies is up-to-date, not a failure.
type SyncResult struct {
	OpID     uuid.UUID     `json:"op_id"`
	Action   Action        `json:"action"`
	Local    string        `json:"local"`
	Remote   string        `json:"remote,omitempty"`
	Files    int           `json:"files"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// Synchronizer mirrors files between the local artifact root and a
// remote root through a Client. It holds no mutable state and is safe
// for concurrent use.
type Synchronizer struct {
	localRoot  string
	remoteRoot string
	client     Client
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	exclude    []string
}

// NewSynchronizer creates a synchronizer over the given client. The
// local and remote roots must be non-empty and must not overlap; an
// overlap would let tree walks cross from one side of the mirror into
// the other.
func NewSynchronizer(cfg config.BackupConfig, localRoot string, client Client) (*Synchronizer, error) {
	if localRoot == "" {
		return nil, errors.New("backup: local artifact root is empty")
	}
	if cfg.RemoteRoot == "" {
		return nil, errors.New("backup: remote root is empty")
	}

	local := filepath.Clean(localRoot)
	remote := filepath.Clean(cfg.RemoteRoot)
	if local == remote || isUnder(local, remote) || isUnder(remote, local) {
		return nil, fmt.Errorf("backup: remote root %s overlaps local root %s", remote, local)
	}

	for _, pattern := range cfg.Exclude {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return nil, fmt.Errorf("backup: invalid exclude pattern %q: %w", pattern, err)
		}
	}

	retries := cfg.RetryAttempts
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	return &Synchronizer{
		localRoot:  local,
		remoteRoot: remote,
		client:     client,
		maxRetries: retries,
		retryDelay: delay,
		timeout:    cfg.Timeout,
		exclude:    cfg.Exclude,
	}, nil
}

// NewMirrorSynchronizer assembles the production stack: a mounted-drive
// client, throttled per config, behind a circuit breaker.
func NewMirrorSynchronizer(cfg config.BackupConfig, localRoot string) (*Synchronizer, error) {
	return NewSynchronizer(cfg, localRoot, NewBreakerClient(NewMirrorClient(cfg.RateLimitMBps)))
}

// RemoteRoot returns the cleaned remote root.
func (s *Synchronizer) RemoteRoot() string { return s.remoteRoot }

// LocalRoot returns the cleaned local artifact root.
func (s *Synchronizer) LocalRoot() string { return s.localRoot }

// IsRemotePath reports whether path already lies under the remote root.
// The test is purely lexical over the cleaned path string; it never
// consults the local-to-remote mapping, because a path the mapping
// leaves unchanged is not evidence that the file lives remotely.
func (s *Synchronizer) IsRemotePath(path string) bool {
	if path == "" {
		return false
	}
	cleaned := filepath.Clean(path)
	return cleaned == s.remoteRoot || isUnder(cleaned, s.remoteRoot)
}

// MapToRemote rebases a path under the local root onto the remote root.
// Paths outside the local root cannot be mirrored and fail with
// ErrRemoteSync.
func (s *Synchronizer) MapToRemote(localPath string) (string, error) {
	rel, err := s.relativeTo(s.localRoot, localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s is outside the artifact root %s", ErrRemoteSync, localPath, s.localRoot)
	}
	return filepath.Join(s.remoteRoot, rel), nil
}

// MapToLocal rebases a path under the remote root onto the local root.
func (s *Synchronizer) MapToLocal(remotePath string) (string, error) {
	rel, err := s.relativeTo(s.remoteRoot, remotePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s is outside the remote root %s", ErrRemoteSync, remotePath, s.remoteRoot)
	}
	return filepath.Join(s.localRoot, rel), nil
}

func (s *Synchronizer) relativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("outside root")
	}
	return rel, nil
}

// SyncToRemote mirrors localPath to the remote root. A path already
// under the remote root is skipped with a debug log. Directories are
// walked and mirrored file by file; files are copied only when the
// remote copy is absent, older, or a different size, so a second
// invocation on unchanged content performs no writes.
func (s *Synchronizer) SyncToRemote(ctx context.Context, localPath string) (SyncResult, error) {
	start := time.Now()
	result := SyncResult{OpID: uuid.New(), Local: localPath}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.IsRemotePath(localPath) {
		result.Action = ActionSkippedRemote
		result.Duration = time.Since(start)
		logging.CtxDebug(ctx).
			Str("op_id", result.OpID.String()).
			Str("path", localPath).
			Msg("Skipping sync: path is already under the remote root")
		metrics.RecordSyncSkip("skip_remote")
		return result, nil
	}

	remotePath, err := s.MapToRemote(localPath)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	result.Remote = remotePath

	info, err := os.Stat(localPath)
	if err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%w: stat local %s: %w", ErrRemoteSync, localPath, err)
	}

	if info.IsDir() {
		result.Files, result.Bytes, err = s.syncTree(ctx, localPath, remotePath)
	} else {
		if s.excluded(filepath.Base(localPath)) {
			result.Action = ActionExcluded
			result.Duration = time.Since(start)
			logging.CtxDebug(ctx).
				Str("op_id", result.OpID.String()).
				Str("path", localPath).
				Msg("Skipping sync: path matches an exclude pattern")
			return result, nil
		}
		var copied bool
		copied, result.Bytes, err = s.syncFile(ctx, localPath, remotePath, info)
		if copied {
			result.Files = 1
		}
	}
	result.Duration = time.Since(start)

	if err != nil {
		metrics.RecordSync("upload", result.Bytes, result.Duration, err)
		return result, err
	}

	if result.Files > 0 {
		result.Action = ActionUploaded
		metrics.RecordSync("upload", result.Bytes, result.Duration, nil)
		logging.CtxInfo(ctx).
			Str("op_id", result.OpID.String()).
			Str("local", localPath).
			Str("remote", remotePath).
			Int("files", result.Files).
			Int64("bytes", result.Bytes).
			Dur("duration", result.Duration).
			Msg("Synced to remote")
	} else {
		result.Action = ActionUpToDate
		metrics.RecordSyncSkip("skip_fresh")
		logging.CtxDebug(ctx).
			Str("op_id", result.OpID.String()).
			Str("local", localPath).
			Msg("Remote copy is up to date")
	}
	return result, nil
}

// RestoreFromRemote mirrors the remote counterpart of localPath back to
// the local side. It only acts when the target is genuinely local; a
// missing remote counterpart means there is nothing to restore and is
// not an error.
func (s *Synchronizer) RestoreFromRemote(ctx context.Context, localPath string) (SyncResult, error) {
	start := time.Now()
	result := SyncResult{OpID: uuid.New(), Local: localPath}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.IsRemotePath(localPath) {
		result.Action = ActionSkippedRemote
		result.Duration = time.Since(start)
		logging.CtxDebug(ctx).
			Str("op_id", result.OpID.String()).
			Str("path", localPath).
			Msg("Skipping restore: target is not a local path")
		metrics.RecordSyncSkip("skip_remote")
		return result, nil
	}

	remotePath, err := s.MapToRemote(localPath)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	result.Remote = remotePath

	var remote FileInfo
	err = s.withRetry(ctx, "stat", func() error {
		var statErr error
		remote, statErr = s.client.Stat(ctx, remotePath)
		return statErr
	})
	if errors.Is(err, fs.ErrNotExist) {
		result.Action = ActionNothingToRestore
		result.Duration = time.Since(start)
		logging.CtxDebug(ctx).
			Str("op_id", result.OpID.String()).
			Str("remote", remotePath).
			Msg("Nothing to restore: no remote counterpart")
		metrics.RecordSyncSkip("skip_absent")
		return result, nil
	}
	if err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%w: stat remote %s: %w", ErrRemoteSync, remotePath, err)
	}

	if remote.Dir {
		result.Files, result.Bytes, err = s.restoreTree(ctx, remotePath, localPath)
	} else {
		var copied bool
		copied, result.Bytes, err = s.restoreFile(ctx, remotePath, localPath)
		if copied {
			result.Files = 1
		}
	}
	result.Duration = time.Since(start)

	if err != nil {
		metrics.RecordSync("download", result.Bytes, result.Duration, err)
		return result, err
	}

	if result.Files > 0 {
		result.Action = ActionDownloaded
		metrics.RecordSync("download", result.Bytes, result.Duration, nil)
		logging.CtxInfo(ctx).
			Str("op_id", result.OpID.String()).
			Str("remote", remotePath).
			Str("local", localPath).
			Int("files", result.Files).
			Int64("bytes", result.Bytes).
			Dur("duration", result.Duration).
			Msg("Restored from remote")
	} else {
		result.Action = ActionUpToDate
		metrics.RecordSyncSkip("skip_fresh")
		logging.CtxDebug(ctx).
			Str("op_id", result.OpID.String()).
			Str("local", localPath).
			Msg("Local copy is up to date")
	}
	return result, nil
}

// syncFile copies one file to the remote when the remote copy is
// absent, older, or a different size. Returns whether a copy happened.
func (s *Synchronizer) syncFile(ctx context.Context, localPath, remotePath string, info fs.FileInfo) (bool, int64, error) {
	var copied bool
	var bytes int64

	err := s.withRetry(ctx, "upload", func() error {
		copied = false
		bytes = 0

		remote, statErr := s.client.Stat(ctx, remotePath)
		switch {
		case errors.Is(statErr, fs.ErrNotExist):
			// Absent: copy below.
		case statErr != nil:
			return statErr
		default:
			if destFresh(info.Size(), info.ModTime(), remote) {
				return nil
			}
		}

		n, upErr := s.client.Upload(ctx, localPath, remotePath)
		if upErr != nil {
			return upErr
		}
		copied = true
		bytes = n
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("%w: upload %s: %w", ErrRemoteSync, localPath, err)
	}
	return copied, bytes, nil
}

// restoreFile copies one remote file to the local side when the local
// copy is absent, older, or a different size.
func (s *Synchronizer) restoreFile(ctx context.Context, remotePath, localPath string) (bool, int64, error) {
	var copied bool
	var bytes int64

	err := s.withRetry(ctx, "download", func() error {
		copied = false
		bytes = 0

		remote, statErr := s.client.Stat(ctx, remotePath)
		if errors.Is(statErr, fs.ErrNotExist) {
			// Vanished since listing; nothing to pull.
			return nil
		}
		if statErr != nil {
			return statErr
		}

		local, statErr := os.Stat(localPath)
		if statErr == nil && destFresh(remote.Size, remote.ModTime, FileInfo{Size: local.Size(), ModTime: local.ModTime()}) {
			return nil
		}
		if statErr != nil && !os.IsNotExist(statErr) {
			return statErr
		}

		n, dlErr := s.client.Download(ctx, remotePath, localPath)
		if dlErr != nil {
			return dlErr
		}
		copied = true
		bytes = n
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("%w: download %s: %w", ErrRemoteSync, remotePath, err)
	}
	return copied, bytes, nil
}

// syncTree mirrors every regular file under localDir. Individual file
// failures are logged and counted but do not stop the walk; an open
// circuit breaker does, since every remaining file would fail the same
// way.
func (s *Synchronizer) syncTree(ctx context.Context, localDir, remoteDir string) (int, int64, error) {
	var files int
	var bytes int64
	var failed int

	walkErr := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if s.excluded(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		copied, n, syncErr := s.syncFile(ctx, path, filepath.Join(remoteDir, rel), info)
		if syncErr != nil {
			if errors.Is(syncErr, gobreaker.ErrOpenState) {
				return syncErr
			}
			failed++
			logging.CtxWarn(ctx).Err(syncErr).Str("path", path).Msg("File sync failed")
			return nil
		}
		if copied {
			files++
			bytes += n
		}
		return nil
	})

	if walkErr != nil {
		return files, bytes, fmt.Errorf("%w: sync tree %s: %w", ErrRemoteSync, localDir, walkErr)
	}
	if failed > 0 {
		return files, bytes, fmt.Errorf("%w: %d files failed under %s", ErrRemoteSync, failed, localDir)
	}
	return files, bytes, nil
}

// restoreTree mirrors every remote file under remoteDir back to the
// local side.
func (s *Synchronizer) restoreTree(ctx context.Context, remoteDir, localDir string) (int, int64, error) {
	var entries []string
	err := s.withRetry(ctx, "list", func() error {
		var listErr error
		entries, listErr = s.client.List(ctx, remoteDir)
		return listErr
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: list %s: %w", ErrRemoteSync, remoteDir, err)
	}

	var files int
	var bytes int64
	var failed int

	for _, rel := range entries {
		if s.excluded(filepath.Base(rel)) {
			continue
		}
		copied, n, restoreErr := s.restoreFile(ctx, filepath.Join(remoteDir, rel), filepath.Join(localDir, rel))
		if restoreErr != nil {
			if errors.Is(restoreErr, gobreaker.ErrOpenState) {
				return files, bytes, restoreErr
			}
			failed++
			logging.CtxWarn(ctx).Err(restoreErr).Str("path", rel).Msg("File restore failed")
			continue
		}
		if copied {
			files++
			bytes += n
		}
	}

	if failed > 0 {
		return files, bytes, fmt.Errorf("%w: %d files failed under %s", ErrRemoteSync, failed, remoteDir)
	}
	return files, bytes, nil
}

// destFresh reports whether a destination copy of the given size and
// modification time makes copying a source file redundant. Comparison
// is at second granularity: mounted remotes commonly truncate
// timestamps, and a sub-second difference must not force a copy on
// every pass. A size mismatch always forces a copy; it is the signature
// of a torn earlier transfer.
func destFresh(srcSize int64, srcMod time.Time, dst FileInfo) bool {
	if srcSize != dst.Size {
		return false
	}
	return srcMod.Unix() <= dst.ModTime.Unix()
}

// excluded reports whether a base name matches any exclude pattern.
// Patterns are validated at construction, so Match cannot fail here.
func (s *Synchronizer) excluded(name string) bool {
	for _, pattern := range s.exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// isUnder reports whether path sits strictly below root. Both must be
// cleaned.
func isUnder(path, root string) bool {
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// withRetry runs op, retrying transient remote failures with
// exponential backoff. Rejections from an open circuit breaker are not
// retried: the breaker has already decided the mount is down.
func (s *Synchronizer) withRetry(ctx context.Context, operation string, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !isRetryable(err) || attempt >= s.maxRetries {
			break
		}

		metrics.RecordSyncRetry()
		delay := calculateBackoff(s.retryDelay, attempt)
		logging.CtxDebug(ctx).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Remote operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// isRetryable reports whether a remote failure is worth another
// attempt. Breaker rejections, cancellation, and missing files are
// final.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return true
}

// calculateBackoff returns base * 2^attempt capped at 30 seconds.
// Mounted remotes that drop out tend to come back on the order of
// seconds; anything longer is the circuit breaker's problem.
func calculateBackoff(base time.Duration, attempt int) time.Duration {
	const maxBackoff = 30 * time.Second

	if attempt > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if backoff > maxBackoff || backoff <= 0 {
		return maxBackoff
	}
	return backoff
}
