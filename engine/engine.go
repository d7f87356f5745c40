/*
 * MIT License
 *
 * Copyright (c) 2026 Amulya Labs
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package engine implements the cache provider: the orchestrator exposing
// Resolve, Restore, Save, Exists and GetIndex over a pluggable storage
// backend, index store and lock manager.
package engine

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amulya-labs/opencache/archive"
	"github.com/amulya-labs/opencache/index"
	"github.com/amulya-labs/opencache/lock"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/storage"
)

// Options configures an Engine instance.
type Options struct {
	// TTLDays is the lifetime of a saved entry; 0 disables expiration.
	TTLDays int
	// MaxCacheSizeGB is the eviction budget; 0 disables eviction.
	MaxCacheSizeGB float64
	Compression    archive.CompressionRequest
	// WorkingDir is the directory archive paths are resolved against and
	// archives are extracted into; defaults to the process working
	// directory when empty.
	WorkingDir string
}

// Engine is the cache provider orchestrating backend, index store and lock
// manager.
type Engine struct {
	backend storage.Backend
	store   index.Store
	locks   lock.Manager
	log     logger.Logger
	opts    Options

	archivesDir string
}

// New builds an Engine. archivesDir is the scope-relative directory
// archives live under ("archives").
func New(backend storage.Backend, store index.Store, locks lock.Manager, log logger.Logger, opts Options) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{backend: backend, store: store, locks: locks, log: log, opts: opts, archivesDir: "archives"}
}

// Resolve returns the live entry for primaryKey, or, failing that, the
// newest live entry matching the first restore-key prefix that matches
// anything. Expiration is judged against one "now" captured on entry.
func (e *Engine) Resolve(ctx context.Context, primaryKey string, restoreKeys []string) (index.ResolveResult, error) {
	var result index.ResolveResult

	err := e.locks.WithLock(ctx, func() error {
		idx, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		now := time.Now()

		if entry, ok := idx.Find(primaryKey); ok && !entry.Expired(now) {
			result = index.ResolveResult{Entry: &entry, MatchedKey: entry.Key, IsExactMatch: true}
			return nil
		}

		for _, prefix := range restoreKeys {
			var candidates []index.CacheEntry
			for _, entry := range idx.Entries {
				if entry.Expired(now) {
					continue
				}
				if strings.HasPrefix(entry.Key, prefix) {
					candidates = append(candidates, entry)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			sort.Slice(candidates, func(i, j int) bool {
				return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
			})
			best := candidates[0]
			result = index.ResolveResult{Entry: &best, MatchedKey: best.Key, IsExactMatch: false}
			return nil
		}

		result = index.ResolveResult{}
		return nil
	})

	return result, err
}

// Restore verifies the entry's archive exists, extracts it into the working
// directory, then best-effort bumps accessedAt.
func (e *Engine) Restore(ctx context.Context, entry index.CacheEntry) error {
	_, err := e.RestoreWithMetrics(ctx, entry)
	return err
}

// RestoreWithMetrics is Restore plus informational transfer metrics.
func (e *Engine) RestoreWithMetrics(ctx context.Context, entry index.CacheEntry) (Metrics, error) {
	start := time.Now()

	exists, err := e.backend.Exists(ctx, entry.ArchivePath)
	if err != nil {
		return Metrics{}, err
	}
	if !exists {
		return Metrics{}, ocerr.Wrap(ocerr.ArchiveNotFound, "Engine.Restore", nil, "%s", entry.ArchivePath)
	}

	targetDir := e.workingDir()

	if local, ok := e.backend.(storage.LocalPather); ok {
		if err := archive.ExtractArchive(local.GetFullPath(entry.ArchivePath), targetDir); err != nil {
			return Metrics{}, err
		}
	} else {
		rc, err := e.backend.GetStream(ctx, entry.ArchivePath)
		if err != nil {
			return Metrics{}, err
		}
		tmpPath, err := spoolToTemp(rc, entry.ArchivePath)
		_ = rc.Close()
		if err != nil {
			return Metrics{}, err
		}
		defer removeQuiet(tmpPath)
		if err := archive.ExtractArchive(tmpPath, targetDir); err != nil {
			return Metrics{}, err
		}
	}

	if err := e.bumpAccessedAt(ctx, entry.Key); err != nil {
		e.log.Warnf("restore: update accessedAt for %q: %v", entry.Key, err)
	}

	return Metrics{Duration: time.Since(start), BytesTransferred: entry.SizeBytes}, nil
}

func (e *Engine) bumpAccessedAt(ctx context.Context, key string) error {
	return e.locks.WithLock(ctx, func() error {
		idx, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		for i := range idx.Entries {
			if idx.Entries[i].Key == key {
				idx.Entries[i].AccessedAt = time.Now()
				return e.store.Save(ctx, idx)
			}
		}
		return nil
	})
}

// Exists reports whether a live entry for key is committed in the index.
// It never touches the backend's archives.
func (e *Engine) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := e.locks.WithLock(ctx, func() error {
		idx, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		entry, ok := idx.Find(key)
		found = ok && !entry.Expired(time.Now())
		return nil
	})
	return found, err
}

// GetIndex returns a read-only snapshot of the committed index.
func (e *Engine) GetIndex(ctx context.Context) (index.CacheIndex, error) {
	var snapshot index.CacheIndex
	err := e.locks.WithLock(ctx, func() error {
		idx, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		snapshot = idx.Clone()
		return nil
	})
	return snapshot, err
}

func (e *Engine) workingDir() string {
	if e.opts.WorkingDir != "" {
		return e.opts.WorkingDir
	}
	return "."
}

func (e *Engine) archivePath(filename string) string {
	return filepath.ToSlash(filepath.Join(e.archivesDir, filename))
}

func (e *Engine) manifestPath(filename string) string {
	return filepath.ToSlash(filepath.Join(e.archivesDir, archiveBaseName(filename)+".meta.json"))
}

// archiveBaseName strips a full archive extension (".tar.zst", ".tar.gz" or
// ".tar") from filename, leaving the "sha256-<16hex>" stem manifests and
// archives share.
func archiveBaseName(filename string) string {
	for _, ext := range []string{".tar.zst", ".tar.gz", ".tar"} {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext)
		}
	}
	return filename
}
