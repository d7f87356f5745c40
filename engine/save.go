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

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/amulya-labs/opencache/archive"
	"github.com/amulya-labs/opencache/index"
	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/storage"
)

// Save commits paths under key as a two-phase save: archive creation runs
// unlocked (it may take minutes), and only the short index read-modify-
// write runs under the lock.
func (e *Engine) Save(ctx context.Context, key string, paths []string) (index.CacheEntry, error) {
	entry, _, err := e.SaveWithMetrics(ctx, key, paths)
	return entry, err
}

// SaveWithMetrics is Save plus informational transfer metrics for the
// archive built during this call. The metrics never influence the outcome;
// on an idempotent hit they describe the discarded upload.
func (e *Engine) SaveWithMetrics(ctx context.Context, key string, paths []string) (index.CacheEntry, Metrics, error) {
	start := time.Now()

	if key == "" {
		return index.CacheEntry{}, Metrics{}, ocerr.New(ocerr.InvalidInput)
	}

	comp, err := archive.ResolveCompressionMethod(e.opts.Compression, e.log)
	if err != nil {
		return index.CacheEntry{}, Metrics{}, err
	}

	// Phase A: unlocked archive creation.
	res, err := archive.CreateArchive(paths, e.scratchDir(), e.workingDir(), comp, e.log)
	if err != nil {
		return index.CacheEntry{}, Metrics{}, err
	}
	defer removeQuiet(res.ArchivePath)

	tmpLocation := e.archivePath(filepath.Base(res.ArchivePath)) +
		fmt.Sprintf(".tmp.%d.%d", time.Now().UnixNano(), os.Getpid())

	if _, err := e.backend.PutFromPath(ctx, tmpLocation, res.ArchivePath); err != nil {
		return index.CacheEntry{}, Metrics{}, err
	}
	tmpStillPending := true
	defer func() {
		if tmpStillPending {
			if err := e.backend.Delete(ctx, tmpLocation); err != nil {
				e.log.Warnf("save: cleanup temp object %s: %v", tmpLocation, err)
			}
		}
	}()

	var result index.CacheEntry

	err = e.locks.WithLock(ctx, func() error {
		idx, err := e.store.Load(ctx)
		if err != nil {
			return err
		}
		now := time.Now()

		if existing, ok := idx.Find(key); ok && !existing.Expired(now) {
			result = existing
			return nil
		}

		cleaned, expiredVictims := expireEntries(idx.Entries, now)

		newSize := res.SizeBytes
		maxBytes := int64(e.opts.MaxCacheSizeGB * (1 << 30))

		var sizeVictims []index.CacheEntry
		if maxBytes > 0 {
			if newSize > maxBytes {
				e.log.Warnf("save: entry %q (%d bytes) alone exceeds maxCacheSizeGb; accepting without eviction", key, newSize)
			} else {
				cleaned, sizeVictims = evictForSize(cleaned, newSize, maxBytes)
			}
		}

		finalLocation := e.archivePath(filepath.Base(res.ArchivePath))
		if err := e.promote(ctx, tmpLocation, finalLocation); err != nil {
			return err
		}
		tmpStillPending = false

		rollback := func() {
			e.deleteArchiveAndManifest(ctx, finalLocation)
		}

		manifest := index.ArchiveManifest{
			Version:           index.CurrentVersion,
			Key:               key,
			CreatedAt:         now,
			SizeBytes:         newSize,
			ArchiveFilename:   filepath.Base(res.ArchivePath),
			CompressionMethod: comp.Method.String(),
			AccessedAt:        now,
		}

		var expiresAt *time.Time
		if e.opts.TTLDays != 0 {
			t := now.AddDate(0, 0, e.opts.TTLDays)
			expiresAt = &t
			manifest.ExpiresAt = expiresAt
		}

		if err := e.writeManifest(ctx, finalLocation, manifest); err != nil {
			rollback()
			return err
		}

		entry := index.CacheEntry{
			Key:         key,
			ArchivePath: finalLocation,
			CreatedAt:   now,
			SizeBytes:   newSize,
			AccessedAt:  now,
			ExpiresAt:   expiresAt,
		}

		newIdx := index.CacheIndex{Version: index.CurrentVersion, Entries: append(cleaned, entry)}
		if err := e.store.Save(ctx, newIdx); err != nil {
			rollback()
			return err
		}

		result = entry

		for _, v := range expiredVictims {
			e.deleteArchiveAndManifest(ctx, v.ArchivePath)
		}
		for _, v := range sizeVictims {
			e.deleteArchiveAndManifest(ctx, v.ArchivePath)
		}

		return nil
	})

	if err != nil {
		return index.CacheEntry{}, Metrics{}, err
	}
	return result, newSaveMetrics(res, time.Since(start)), nil
}

// promote moves the object at from to to, using the backend's native atomic
// rename when available and falling back to stream-copy-then-delete
// otherwise.
func (e *Engine) promote(ctx context.Context, from, to string) error {
	if r, ok := e.backend.(storage.Renamer); ok {
		_, err := r.Rename(ctx, from, to)
		return err
	}

	rc, err := e.backend.GetStream(ctx, from)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if _, err := e.backend.Put(ctx, to, rc, 0); err != nil {
		return err
	}
	return e.backend.Delete(ctx, from)
}

func (e *Engine) writeManifest(ctx context.Context, archiveLocation string, manifest index.ArchiveManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return ocerr.Wrap(ocerr.InvalidInput, "Engine.Save", err, "marshal manifest")
	}
	loc := e.manifestPath(filepath.Base(archiveLocation))
	if _, err := e.backend.Put(ctx, loc, bytes.NewReader(data), int64(len(data))); err != nil {
		return err
	}
	return nil
}

func (e *Engine) deleteArchiveAndManifest(ctx context.Context, archiveLocation string) {
	if err := e.backend.Delete(ctx, archiveLocation); err != nil {
		e.log.Warnf("save: delete archive %s: %v", archiveLocation, err)
	}
	manifestLoc := e.manifestPath(filepath.Base(archiveLocation))
	if err := e.backend.Delete(ctx, manifestLoc); err != nil {
		e.log.Warnf("save: delete manifest %s: %v", manifestLoc, err)
	}
}

// scratchDir returns a local directory archive.CreateArchive can build the
// temp tar in before it is promoted into the backend; it is created on
// demand since the backend's own storage root may not be a local path.
func (e *Engine) scratchDir() string {
	dir := filepath.Join(os.TempDir(), "opencache-scratch")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// expireEntries splits entries into those still live as of now and those
// that have expired, for Save's opportunistic cleanup.
func expireEntries(entries []index.CacheEntry, now time.Time) (kept, expired []index.CacheEntry) {
	for _, e := range entries {
		if e.Expired(now) {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	return kept, expired
}

// evictForSize selects LRU victims (smallest accessedAt, ties broken by
// smallest createdAt) until total size + newSize fits within maxBytes.
func evictForSize(entries []index.CacheEntry, newSize, maxBytes int64) (kept, victims []index.CacheEntry) {
	ordered := make([]index.CacheEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].AccessedAt.Equal(ordered[j].AccessedAt) {
			return ordered[i].AccessedAt.Before(ordered[j].AccessedAt)
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var total int64
	for _, e := range ordered {
		total += e.SizeBytes
	}

	i := 0
	for total+newSize > maxBytes && i < len(ordered) {
		total -= ordered[i].SizeBytes
		victims = append(victims, ordered[i])
		i++
	}

	victimKeys := make(map[string]bool, len(victims))
	for _, v := range victims {
		victimKeys[v.Key] = true
	}
	for _, e := range entries {
		if !victimKeys[e.Key] {
			kept = append(kept, e)
		}
	}
	return kept, victims
}
