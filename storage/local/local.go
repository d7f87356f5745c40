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

// Package local implements storage.Backend over a plain filesystem tree
// rooted at basePath/owner/repo. Writes go to a temp sibling first, then
// rename into place.
package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/scope"
)

// Backend is a storage.Backend rooted at a directory on the local
// filesystem.
type Backend struct {
	root string
}

// New builds a local Backend rooted at basePath/scope.Prefix().
func New(basePath string, sc scope.Scope) *Backend {
	return &Backend{root: filepath.Join(basePath, filepath.FromSlash(sc.Prefix()))}
}

// GetFullPath returns the real filesystem path backing a scope-relative
// location, for callers (the archive codec) that want to operate on it
// directly rather than through Get/GetStream.
func (b *Backend) GetFullPath(location string) string {
	return filepath.Join(b.root, filepath.FromSlash(location))
}

func (b *Backend) Put(_ context.Context, location string, data io.Reader, _ int64) (string, error) {
	full := b.GetFullPath(location)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Put", err, "mkdir %s", filepath.Dir(full))
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*.tmp")
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Put", err, "create temp for %s", location)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Put", err, "write %s", location)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Put", err, "close %s", location)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		_ = os.Remove(tmpPath)
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Put", err, "rename into %s", location)
	}

	return location, nil
}

// PutFromPath promotes srcPath into the backend namespace by renaming it,
// avoiding a copy. Falls back to copy+remove across filesystem boundaries.
func (b *Backend) PutFromPath(_ context.Context, location, srcPath string) (string, error) {
	full := b.GetFullPath(location)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "local.PutFromPath", err, "mkdir %s", filepath.Dir(full))
	}

	if err := os.Rename(srcPath, full); err == nil {
		return location, nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "local.PutFromPath", err, "open %s", srcPath)
	}
	defer func() { _ = src.Close() }()

	loc, err := b.Put(context.Background(), location, src, 0)
	if err != nil {
		return "", err
	}
	_ = os.Remove(srcPath)
	return loc, nil
}

// Rename atomically moves an object within the backend, used by the engine
// to promote a temp archive to its final name without a copy.
func (b *Backend) Rename(_ context.Context, from, to string) (string, error) {
	fullTo := b.GetFullPath(to)
	if err := os.MkdirAll(filepath.Dir(fullTo), 0o755); err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Rename", err, "mkdir %s", filepath.Dir(fullTo))
	}
	if err := os.Rename(b.GetFullPath(from), fullTo); err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "local.Rename", err, "rename %s to %s", from, to)
	}
	return to, nil
}

func (b *Backend) Get(_ context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(b.GetFullPath(location))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ocerr.Wrap(ocerr.ArchiveNotFound, "local.Get", err, "%s", location)
	}
	if err != nil {
		return nil, ocerr.Wrap(ocerr.FatalIO, "local.Get", err, "%s", location)
	}
	return data, nil
}

func (b *Backend) GetStream(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(b.GetFullPath(location))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ocerr.Wrap(ocerr.ArchiveNotFound, "local.GetStream", err, "%s", location)
	}
	if err != nil {
		return nil, ocerr.Wrap(ocerr.FatalIO, "local.GetStream", err, "%s", location)
	}
	return f, nil
}

func (b *Backend) Delete(_ context.Context, location string) error {
	err := os.Remove(b.GetFullPath(location))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ocerr.Wrap(ocerr.FatalIO, "local.Delete", err, "%s", location)
	}
	return nil
}

func (b *Backend) Exists(_ context.Context, location string) (bool, error) {
	_, err := os.Stat(b.GetFullPath(location))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, ocerr.Wrap(ocerr.FatalIO, "local.Exists", err, "%s", location)
}

func (b *Backend) GetSize(_ context.Context, location string) (int64, error) {
	info, err := os.Stat(b.GetFullPath(location))
	if errors.Is(err, os.ErrNotExist) {
		return 0, ocerr.Wrap(ocerr.ArchiveNotFound, "local.GetSize", err, "%s", location)
	}
	if err != nil {
		return 0, ocerr.Wrap(ocerr.FatalIO, "local.GetSize", err, "%s", location)
	}
	return info.Size(), nil
}
