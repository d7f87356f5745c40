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

package lock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

const (
	localRetries        = 5
	localInitialBackoff = 100 * time.Millisecond
	localMaxBackoff     = 5 * time.Second
	localStaleAfter     = 30 * time.Second
)

// LocalManager is a Manager backed by an advisory file lock (gofrs/flock) on
// a sibling ".lock" file, plus an in-process mutex so that concurrent
// WithLock calls within one engine instance also serialize fully.
type LocalManager struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

// NewLocalManager builds a LocalManager guarding path (typically
// "<scope-dir>/index.json.lock").
func NewLocalManager(path string, log logger.Logger) *LocalManager {
	if log == nil {
		log = logger.Discard()
	}
	return &LocalManager{path: path, log: log}
}

// WithLock implements Manager.
func (m *LocalManager) WithLock(ctx context.Context, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The scope directory may not exist before the first save.
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return ocerr.Wrap(ocerr.LockAcquisitionFailed, "LocalManager.WithLock", err, "mkdir for %s", m.path)
	}

	fl := flock.New(m.path)

	if err := m.acquire(ctx, fl); err != nil {
		return err
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			m.log.Warnf("lock: release %s: %v", m.path, err)
		}
	}()

	return fn()
}

func (m *LocalManager) acquire(ctx context.Context, fl *flock.Flock) error {
	backoff := localInitialBackoff

	for attempt := 0; attempt <= localRetries; attempt++ {
		ok, err := fl.TryLock()
		if err != nil {
			return ocerr.Wrap(ocerr.LockAcquisitionFailed, "LocalManager.WithLock", err, "trylock %s", m.path)
		}
		if ok {
			// flock never touches the file's modification time; stamp it so
			// reclaimIfStale measures how long this holder has had the lock.
			now := time.Now()
			_ = os.Chtimes(fl.Path(), now, now)
			return nil
		}

		if m.reclaimIfStale(fl.Path()) {
			continue
		}

		if attempt == localRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ocerr.Wrap(ocerr.LockAcquisitionFailed, "LocalManager.WithLock", ctx.Err(), "cancelled waiting for %s", m.path)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > localMaxBackoff {
			backoff = localMaxBackoff
		}
	}

	return ocerr.Wrap(ocerr.LockAcquisitionFailed, "LocalManager.WithLock", nil, "exhausted %d retries for %s", localRetries, m.path)
}

// reclaimIfStale removes a lock file whose modification time is older than
// the staleness threshold, so the next TryLock in the retry loop can
// succeed. It never blocks: a failed removal just falls through to normal
// backoff/retry.
func (m *LocalManager) reclaimIfStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) <= localStaleAfter {
		return false
	}
	if err := os.Remove(path); err != nil {
		return false
	}
	m.log.Warnf("lock: reclaimed stale lock %s", path)
	return true
}
