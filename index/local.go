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
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// LocalStore is a Store backed by an index.json file committed via atomic
// rename of a temp sibling.
type LocalStore struct {
	dir string
	log logger.Logger
}

// NewLocalStore builds a LocalStore rooted at dir (the repository scope
// directory containing index.json and archives/).
func NewLocalStore(dir string, log logger.Logger) *LocalStore {
	if log == nil {
		log = logger.Discard()
	}
	return &LocalStore{dir: dir, log: log}
}

func (s *LocalStore) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

func (s *LocalStore) archivesDir() string {
	return filepath.Join(s.dir, "archives")
}

// Load implements Store. A missing or unparsable index triggers a manifest
// rebuild; an unrecognized version logs a warning and also rebuilds.
func (s *LocalStore) Load(_ context.Context) (CacheIndex, error) {
	rebuildEnv := truthy(os.Getenv("REBUILD_INDEX"))

	data, err := os.ReadFile(s.indexPath())
	switch {
	case err == nil && !rebuildEnv:
		var idx CacheIndex
		if jerr := json.Unmarshal(data, &idx); jerr != nil {
			s.log.Warnf("index.json is not valid JSON, rebuilding from manifests: %v", jerr)
			return s.rebuild()
		}
		if idx.Version == CurrentVersion {
			return idx, nil
		}
		migrateVersion(&idx)
		if idx.Version == CurrentVersion {
			return idx, nil
		}
		s.log.Warnf("index.json has unrecognized version %q, rebuilding from manifests", idx.Version)
		return s.rebuild()

	case errors.Is(err, os.ErrNotExist):
		return s.rebuild()

	case rebuildEnv:
		s.log.Infof("REBUILD_INDEX set, rebuilding from manifests")
		return s.rebuild()

	default:
		return CacheIndex{}, ocerr.Wrap(ocerr.FatalIO, "LocalStore.Load", err, "read index.json")
	}
}

func (s *LocalStore) rebuild() (CacheIndex, error) {
	report, err := Rebuild(s.archivesDir(), s.log)
	if err != nil {
		return CacheIndex{}, ocerr.Wrap(ocerr.CorruptIndex, "LocalStore.Load", err, "rebuild from manifests")
	}
	return report.Index, nil
}

// Save implements Store by writing a temp file and renaming it into place,
// the atomic commit point.
func (s *LocalStore) Save(_ context.Context, idx CacheIndex) error {
	if idx.Version == "" {
		idx.Version = CurrentVersion
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return ocerr.Wrap(ocerr.FatalIO, "LocalStore.Save", err, "mkdir %s", s.dir)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return ocerr.Wrap(ocerr.InvalidInput, "LocalStore.Save", err, "marshal index")
	}

	tmpPath := filepath.Join(s.dir, "index.json.tmp."+strconv.FormatInt(time.Now().UnixNano(), 10)+"."+strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return ocerr.Wrap(ocerr.FatalIO, "LocalStore.Save", err, "write temp index")
	}

	if err := os.Rename(tmpPath, s.indexPath()); err != nil {
		_ = os.Remove(tmpPath)
		return ocerr.Wrap(ocerr.FatalIO, "LocalStore.Save", err, "commit index")
	}

	return nil
}

func truthy(v string) bool {
	return v == "1" || v == "true" || v == "TRUE" || v == "True"
}
