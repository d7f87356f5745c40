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
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

const (
	remoteAttempts       = 10
	remoteInitialBackoff = 100 * time.Millisecond
	remoteMaxBackoff     = 5 * time.Second
	remoteStaleAfter     = 30 * time.Second
)

// ConditionalObjectStore is the capability RemoteManager needs from a
// backend: fetch-with-token and write-if-token-matches. It mirrors
// index.ConditionalObjectStore's shape (both S3's ETag and GCS's generation
// satisfy it) without importing the index package, since a lock is a
// storage-layer concern, not an indexing one.
type ConditionalObjectStore interface {
	LoadToken(ctx context.Context, location string) (data []byte, token string, exists bool, err error)
	SaveToken(ctx context.Context, location string, data []byte, expectedToken string) (newToken string, err error)
	Delete(ctx context.Context, location string) error
}

type lockBody struct {
	LockID    string `json:"lockId"`
	Timestamp int64  `json:"timestamp"`
}

// RemoteManager is a Manager backed by a conditional put-if-absent object
// under "<scope>/locks/<name>": acquisition is a put-if-absent, contention
// backs off exponentially, and a holder silent for too long is stolen.
type RemoteManager struct {
	backend  ConditionalObjectStore
	location string
	log      logger.Logger
	mu       sync.Mutex
}

// NewRemoteManager builds a RemoteManager guarding location, scope-relative
// ("locks/index.lock"; the backend already carries the scope prefix).
func NewRemoteManager(backend ConditionalObjectStore, location string, log logger.Logger) *RemoteManager {
	if log == nil {
		log = logger.Discard()
	}
	return &RemoteManager{backend: backend, location: location, log: log}
}

// WithLock implements Manager.
func (m *RemoteManager) WithLock(ctx context.Context, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockID, err := uuid.GenerateUUID()
	if err != nil {
		return ocerr.Wrap(ocerr.LockAcquisitionFailed, "RemoteManager.WithLock", err, "generate lock id")
	}

	if err := m.acquire(ctx, lockID); err != nil {
		return err
	}
	defer func() {
		if err := m.backend.Delete(ctx, m.location); err != nil {
			// best-effort release; the next acquirer's staleness check
			// covers a leaked lock.
			m.log.Warnf("lock: release %s: %v", m.location, err)
		}
	}()

	return fn()
}

func (m *RemoteManager) acquire(ctx context.Context, lockID string) error {
	backoff := remoteInitialBackoff

	for attempt := 0; attempt < remoteAttempts; attempt++ {
		body, err := json.Marshal(lockBody{LockID: lockID, Timestamp: time.Now().Unix()})
		if err != nil {
			return ocerr.Wrap(ocerr.LockAcquisitionFailed, "RemoteManager.WithLock", err, "marshal lock body")
		}

		_, err = m.backend.SaveToken(ctx, m.location, body, "")
		if err == nil {
			if ok, verr := m.verify(ctx, lockID); verr != nil {
				return verr
			} else if ok {
				return nil
			}
			// Lost the race to another writer between write and read-back.
		} else if !ocerr.Is(err, ocerr.ConcurrentModification) {
			return ocerr.Wrap(ocerr.BackendError, "RemoteManager.WithLock", err, "write lock %s", m.location)
		} else if stolen, serr := m.stealIfStale(ctx, lockID); serr != nil {
			return serr
		} else if stolen {
			return nil
		}

		select {
		case <-ctx.Done():
			return ocerr.Wrap(ocerr.LockAcquisitionFailed, "RemoteManager.WithLock", ctx.Err(), "cancelled waiting for %s", m.location)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > remoteMaxBackoff {
			backoff = remoteMaxBackoff
		}
	}

	return ocerr.Wrap(ocerr.LockAcquisitionFailed, "RemoteManager.WithLock", nil, "exhausted %d attempts for %s", remoteAttempts, m.location)
}

// verify reads the lock back and confirms our lockID won the write.
func (m *RemoteManager) verify(ctx context.Context, lockID string) (bool, error) {
	data, _, exists, err := m.backend.LoadToken(ctx, m.location)
	if err != nil {
		return false, ocerr.Wrap(ocerr.BackendError, "RemoteManager.WithLock", err, "verify %s", m.location)
	}
	if !exists {
		return false, nil
	}
	var b lockBody
	if err := json.Unmarshal(data, &b); err != nil {
		return false, nil
	}
	return b.LockID == lockID, nil
}

// stealIfStale reads the current lock and, if its timestamp is older than
// the staleness threshold, overwrites it with our own lock. The overwrite is
// conditioned on the token just read, not unconditional: if another writer
// changed the lock in between, the steal is abandoned and reports false.
func (m *RemoteManager) stealIfStale(ctx context.Context, lockID string) (bool, error) {
	data, token, exists, err := m.backend.LoadToken(ctx, m.location)
	if err != nil {
		return false, ocerr.Wrap(ocerr.BackendError, "RemoteManager.WithLock", err, "read %s", m.location)
	}
	if !exists {
		return false, nil
	}

	var existing lockBody
	if err := json.Unmarshal(data, &existing); err != nil {
		return false, nil
	}
	if time.Since(time.Unix(existing.Timestamp, 0)) <= remoteStaleAfter {
		return false, nil
	}

	body, err := json.Marshal(lockBody{LockID: lockID, Timestamp: time.Now().Unix()})
	if err != nil {
		return false, ocerr.Wrap(ocerr.LockAcquisitionFailed, "RemoteManager.WithLock", err, "marshal lock body")
	}

	if _, err := m.backend.SaveToken(ctx, m.location, body, token); err != nil {
		if ocerr.Is(err, ocerr.ConcurrentModification) {
			return false, nil
		}
		return false, ocerr.Wrap(ocerr.BackendError, "RemoteManager.WithLock", err, "steal %s", m.location)
	}

	m.log.Warnf("lock: stole stale lock %s", m.location)
	ok, verr := m.verify(ctx, lockID)
	if verr != nil {
		return false, verr
	}
	return ok, nil
}
