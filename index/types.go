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

// Package index defines the cache index's data model and the index-store
// contract (local, atomic-rename-backed; remote, generation-token-backed),
// plus the manifest-based rebuilder for the local backend.
package index

import "time"

// CurrentVersion is the schema version written by this build.
const CurrentVersion = "2"

// CacheEntry is one row of the index: a single saved archive.
type CacheEntry struct {
	Key         string     `json:"key"`
	ArchivePath string     `json:"archivePath"`
	CreatedAt   time.Time  `json:"createdAt"`
	SizeBytes   int64      `json:"sizeBytes"`
	AccessedAt  time.Time  `json:"accessedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether e is expired as of now.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// CacheIndex is the authoritative list of live entries for a repository
// scope.
type CacheIndex struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// Clone returns a deep copy, used to hand callers a read-only snapshot from
// getIndex without exposing the store's internal slice.
func (idx CacheIndex) Clone() CacheIndex {
	out := CacheIndex{Version: idx.Version, Entries: make([]CacheEntry, len(idx.Entries))}
	copy(out.Entries, idx.Entries)
	for i, e := range out.Entries {
		if e.ExpiresAt != nil {
			t := *e.ExpiresAt
			out.Entries[i].ExpiresAt = &t
		}
	}
	return out
}

// Find returns the entry with the given key, if any.
func (idx CacheIndex) Find(key string) (CacheEntry, bool) {
	for _, e := range idx.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return CacheEntry{}, false
}

// WithoutKey returns a copy of idx with the entry matching key removed.
func (idx CacheIndex) WithoutKey(key string) CacheIndex {
	out := CacheIndex{Version: idx.Version}
	for _, e := range idx.Entries {
		if e.Key != key {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// ArchiveManifest is the sidecar JSON stored next to every archive in the
// local backend, letting Rebuild reconstruct the index from archives alone.
type ArchiveManifest struct {
	Version           string     `json:"version"`
	Key               string     `json:"key"`
	CreatedAt         time.Time  `json:"createdAt"`
	SizeBytes         int64      `json:"sizeBytes"`
	ArchiveFilename   string     `json:"archiveFilename"`
	CompressionMethod string     `json:"compressionMethod"`
	AccessedAt        time.Time  `json:"accessedAt"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
}

// ResolveResult is the outcome of resolving a primary key against an index,
// falling back through restore-key prefixes.
type ResolveResult struct {
	Entry        *CacheEntry
	MatchedKey   string
	IsExactMatch bool
}
