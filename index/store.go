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

package index

import "context"

// Store loads and persists a CacheIndex. Local implementations use an
// atomic file rename for the commit; remote implementations enforce
// optimistic concurrency via a generation token captured on Load and
// checked on Save.
type Store interface {
	Load(ctx context.Context) (CacheIndex, error)
	// Save persists idx. Implementations that track a generation token
	// return ocerr.ConcurrentModification when the token captured by the
	// last Load no longer matches the backend's current state.
	Save(ctx context.Context, idx CacheIndex) error
}

// migrateVersion applies the v1->v2 migration in place: copy createdAt into
// accessedAt when the latter is absent.
func migrateVersion(idx *CacheIndex) {
	if idx.Version != "1" {
		return
	}
	for i := range idx.Entries {
		if idx.Entries[i].AccessedAt.IsZero() {
			idx.Entries[i].AccessedAt = idx.Entries[i].CreatedAt
		}
	}
	idx.Version = CurrentVersion
}
