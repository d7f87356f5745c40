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

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// ConditionalObjectStore is the minimal capability a remote backend exposes
// to RemoteStore: fetch-with-token and write-if-token-matches. S3's ETag and
// GCS's object generation are both opaque "generation token" strings from
// this package's point of view.
type ConditionalObjectStore interface {
	// LoadToken fetches location, returning its content, an opaque token
	// identifying the current version, and whether it existed at all. A
	// missing object is not an error: it returns exists=false.
	LoadToken(ctx context.Context, location string) (data []byte, token string, exists bool, err error)
	// SaveToken writes data to location, enforcing that the object's
	// current token equals expectedToken ("" meaning "must not exist").
	// A mismatch returns ocerr.ConcurrentModification.
	SaveToken(ctx context.Context, location string, data []byte, expectedToken string) (newToken string, err error)
}

// RemoteStore is a Store backed by a ConditionalObjectStore: Load captures
// the object's generation token, Save writes only if the token still
// matches, so racing writers get ConcurrentModification instead of a lost
// update.
type RemoteStore struct {
	backend  ConditionalObjectStore
	location string
	log      logger.Logger

	token string
}

// NewRemoteStore builds a RemoteStore writing the index at location,
// scope-relative ("index.json"; the backend already carries the scope
// prefix).
func NewRemoteStore(backend ConditionalObjectStore, location string, log logger.Logger) *RemoteStore {
	if log == nil {
		log = logger.Discard()
	}
	return &RemoteStore{backend: backend, location: location, log: log}
}

func (s *RemoteStore) Load(ctx context.Context) (CacheIndex, error) {
	data, token, exists, err := s.backend.LoadToken(ctx, s.location)
	if err != nil {
		return CacheIndex{}, ocerr.Wrap(ocerr.BackendError, "RemoteStore.Load", err, "load %s", s.location)
	}
	if !exists {
		s.token = ""
		return CacheIndex{Version: CurrentVersion}, nil
	}

	s.token = token

	var idx CacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		s.log.Warnf("index.json is not valid JSON: %v", err)
		return CacheIndex{}, ocerr.Wrap(ocerr.CorruptIndex, "RemoteStore.Load", err, "parse %s", s.location)
	}

	if idx.Version == CurrentVersion {
		return idx, nil
	}
	migrateVersion(&idx)
	if idx.Version == CurrentVersion {
		return idx, nil
	}
	s.log.Warnf("index.json has unrecognized version %q", idx.Version)
	return CacheIndex{Version: CurrentVersion}, nil
}

func (s *RemoteStore) Save(ctx context.Context, idx CacheIndex) error {
	if idx.Version == "" {
		idx.Version = CurrentVersion
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx); err != nil {
		return ocerr.Wrap(ocerr.InvalidInput, "RemoteStore.Save", err, "marshal index")
	}

	newToken, err := s.backend.SaveToken(ctx, s.location, buf.Bytes(), s.token)
	if err != nil {
		if ocerr.Is(err, ocerr.ConcurrentModification) {
			return err
		}
		return ocerr.Wrap(ocerr.BackendError, "RemoteStore.Save", err, "save %s", s.location)
	}

	s.token = newToken
	return nil
}
