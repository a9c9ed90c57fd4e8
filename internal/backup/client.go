// Archivarius - HPO Study Artifact Storage and Lifecycle Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/archivarius

package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/archivarius/internal/logging"
)

// copyChunkSize is the unit of transfer for uploads and downloads. The
// rate limiter meters tokens per chunk, so its burst must cover at least
// one chunk.
const copyChunkSize = 1 << 20 // 1 MiB

// FileInfo describes a file on either side of the mirror.
type FileInfo struct {
	Size    int64
	ModTime time.Time
	Dir     bool
}

// Client is the remote storage surface the synchronizer works against.
//
// Stat returns fs.ErrNotExist (possibly wrapped) for missing paths.
// Upload and Download create missing parent directories and preserve the
// source file's modification time on the destination, so freshness
// comparisons see content age rather than transfer time. List returns
// the relative paths of all regular files under dir, walking
// recursively.
type Client interface {
	Exists(ctx context.Context, path string) (bool, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Upload(ctx context.Context, localPath, remotePath string) (int64, error)
	Download(ctx context.Context, remotePath, localPath string) (int64, error)
	MkdirAll(ctx context.Context, dir string) error
	List(ctx context.Context, dir string) ([]string, error)
}

// MirrorClient implements Client against a mounted remote filesystem
// (cloud-drive or NAS mount). All operations are plain file I/O on the
// mount; uploads are optionally throttled by a shared token bucket.
type MirrorClient struct {
	limiter *rate.Limiter // nil means unthrottled
}

// NewMirrorClient creates a mounted-drive client. rateLimitMBps caps
// upload bandwidth in megabytes per second; zero or negative means
// unlimited. Downloads are never throttled.
func NewMirrorClient(rateLimitMBps float64) *MirrorClient {
	var limiter *rate.Limiter
	if rateLimitMBps > 0 {
		bytesPerSec := rate.Limit(rateLimitMBps * 1024 * 1024)
		burst := copyChunkSize
		if float64(burst) < float64(bytesPerSec) {
			burst = int(bytesPerSec)
		}
		limiter = rate.NewLimiter(bytesPerSec, burst)
	}
	return &MirrorClient{limiter: limiter}
}

// Exists reports whether path is present on the mount.
func (c *MirrorClient) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// Stat returns size and modification time for path. Missing paths
// return an error satisfying errors.Is(err, fs.ErrNotExist).
func (c *MirrorClient) Stat(_ context.Context, path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Dir:     info.IsDir(),
	}, nil
}

// Upload copies localPath to remotePath, creating parent directories as
// needed. The remote file's modification time is set to the local
// file's so a subsequent freshness check compares content age.
func (c *MirrorClient) Upload(ctx context.Context, localPath, remotePath string) (int64, error) {
	return c.transfer(ctx, localPath, remotePath, c.limiter)
}

// Download copies remotePath to localPath, creating parent directories
// as needed and preserving the remote modification time.
func (c *MirrorClient) Download(ctx context.Context, remotePath, localPath string) (int64, error) {
	return c.transfer(ctx, remotePath, localPath, nil)
}

// MkdirAll creates dir and any missing parents on the mount.
func (c *MirrorClient) MkdirAll(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// List returns the relative paths of every regular file under dir.
func (c *MirrorClient) List(_ context.Context, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return files, nil
}

// transfer copies src to dst in chunks, honouring ctx between chunks
// and waiting on the limiter when one is set. The destination inherits
// the source's modification time.
func (c *MirrorClient) transfer(ctx context.Context, src, dst string, limiter *rate.Limiter) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer closeQuietly(in)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	written, err := copyChunked(ctx, out, in, limiter)
	if err != nil {
		closeQuietly(out)
		return written, err
	}
	if err := out.Sync(); err != nil {
		closeQuietly(out)
		return written, err
	}
	if err := out.Close(); err != nil {
		return written, err
	}

	// Mirror the source mtime so "newer" compares content age, not the
	// time of this copy. Failure here is harmless: the size check still
	// catches divergence.
	if err := os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		logging.Debug().Err(err).Str("path", dst).Msg("Could not preserve modification time")
	}

	return written, nil
}

// copyChunked copies in fixed-size chunks so cancellation and rate
// limiting take effect mid-file.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader, limiter *rate.Limiter) (int64, error) {
	buf := make([]byte, copyChunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			w, writeErr := dst.Write(buf[:n])
			written += int64(w)
			if writeErr != nil {
				return written, writeErr
			}
			if w < n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// closeQuietly closes c and logs any error at debug level.
func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Close failed")
	}
}
