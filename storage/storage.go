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

// Package storage defines the object-store contract every backend variant
// (local, s3, gcs) implements, and that the index/lock/engine packages
// depend on through this interface alone.
package storage

import (
	"context"
	"io"
)

// Backend manages opaque objects identified by scope-relative paths, e.g.
// "archives/sha256-<16hex>.tar.zst" or "index.json". Every method is safe to
// call from a single-threaded caller; the backend does not serialize
// concurrent callers itself, that is the lock manager's job.
type Backend interface {
	// Put writes data under location, returning the scope-relative location
	// actually used (backends are free to ignore/accept the suggested name).
	Put(ctx context.Context, location string, data io.Reader, size int64) (string, error)
	// PutFromPath promotes an already-written local file into the backend
	// namespace. The local backend renames in place to avoid a copy; remote
	// backends open and stream the file.
	PutFromPath(ctx context.Context, location, srcPath string) (string, error)
	// Get returns the full contents of location. Fails with
	// ocerr.ArchiveNotFound when absent.
	Get(ctx context.Context, location string) ([]byte, error)
	// GetStream returns a streaming reader for location; the caller must
	// close it. Fails with ocerr.ArchiveNotFound when absent.
	GetStream(ctx context.Context, location string) (io.ReadCloser, error)
	// Delete removes location. It is idempotent: deleting an absent object
	// is not an error.
	Delete(ctx context.Context, location string) error
	// Exists reports whether location is present.
	Exists(ctx context.Context, location string) (bool, error)
	// GetSize returns the object's size in bytes, or fails with
	// ocerr.ArchiveNotFound when absent.
	GetSize(ctx context.Context, location string) (int64, error)
}

// LocalPather is implemented only by the local backend, exposing the real
// filesystem path of an object so the engine can extract an archive
// directly instead of copying it through Get/GetStream first.
type LocalPather interface {
	GetFullPath(location string) string
}

// Renamer is implemented by backends that can move an object from one
// location to another without a full copy (the local backend's os.Rename).
// Backends without a native move fall back to stream-copy-then-delete.
type Renamer interface {
	Rename(ctx context.Context, from, to string) (string, error)
}

// MultipartThreshold is the size above which remote backends switch to a
// multipart/resumable upload.
const MultipartThreshold = 5 << 20
