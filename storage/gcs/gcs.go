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

// Package gcs implements storage.Backend against a Google Cloud Storage
// bucket, following the bucket/object-handle, Attrs/NewWriter/NewReader
// shape used for GCS-backed caches elsewhere in the ecosystem.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/scope"
	ocstorage "github.com/amulya-labs/opencache/storage"
)

// Options configures the GCS backend.
type Options struct {
	Bucket string
	Prefix string
}

// Backend is a storage.Backend backed by a GCS bucket.
type Backend struct {
	bucket *storage.BucketHandle
	root   string
}

// New builds a Backend from opts, using application-default credentials.
func New(ctx context.Context, opts Options, sc scope.Scope) (*Backend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, ocerr.Wrap(ocerr.BackendError, "gcs.New", err, "new client")
	}

	root := sc.Prefix()
	if opts.Prefix != "" {
		root = opts.Prefix + "/" + root
	}

	return &Backend{bucket: client.Bucket(opts.Bucket), root: root}, nil
}

func (b *Backend) object(location string) *storage.ObjectHandle {
	return b.bucket.Object(b.root + "/" + location)
}

func (b *Backend) Put(ctx context.Context, location string, data io.Reader, _ int64) (string, error) {
	w := b.object(location).NewWriter(ctx)
	// Resumable chunked upload past the shared threshold; smaller objects go
	// up in one request.
	w.ChunkSize = ocstorage.MultipartThreshold
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", ocerr.Wrap(ocerr.BackendError, "gcs.Put", err, "write %s", location)
	}
	if err := w.Close(); err != nil {
		return "", ocerr.Wrap(ocerr.BackendError, "gcs.Put", err, "finalize %s", location)
	}
	return location, nil
}

func (b *Backend) PutFromPath(ctx context.Context, location, srcPath string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "gcs.PutFromPath", err, "open %s", srcPath)
	}
	defer func() { _ = f.Close() }()

	loc, err := b.Put(ctx, location, f, 0)
	if err != nil {
		return "", err
	}
	_ = os.Remove(srcPath)
	return loc, nil
}

func (b *Backend) Get(ctx context.Context, location string) ([]byte, error) {
	rc, err := b.GetStream(ctx, location)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, ocerr.Wrap(ocerr.BackendError, "gcs.Get", err, "read %s", location)
	}
	return data, nil
}

func (b *Backend) GetStream(ctx context.Context, location string) (io.ReadCloser, error) {
	r, err := b.object(location).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ocerr.Wrap(ocerr.ArchiveNotFound, "gcs.GetStream", err, "%s", location)
	}
	if err != nil {
		return nil, ocerr.Wrap(ocerr.BackendError, "gcs.GetStream", err, "%s", location)
	}
	return r, nil
}

func (b *Backend) Delete(ctx context.Context, location string) error {
	err := b.object(location).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return ocerr.Wrap(ocerr.BackendError, "gcs.Delete", err, "%s", location)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, location string) (bool, error) {
	_, err := b.object(location).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ocerr.Wrap(ocerr.BackendError, "gcs.Exists", err, "%s", location)
	}
	return true, nil
}

func (b *Backend) GetSize(ctx context.Context, location string) (int64, error) {
	attrs, err := b.object(location).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, ocerr.Wrap(ocerr.ArchiveNotFound, "gcs.GetSize", err, "%s", location)
	}
	if err != nil {
		return 0, ocerr.Wrap(ocerr.BackendError, "gcs.GetSize", err, "%s", location)
	}
	return attrs.Size, nil
}

// Generation returns the current object generation token, used by the
// remote index store for optimistic concurrency.
func (b *Backend) Generation(ctx context.Context, location string) (int64, bool, error) {
	attrs, err := b.object(location).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ocerr.Wrap(ocerr.BackendError, "gcs.Generation", err, "%s", location)
	}
	return attrs.Generation, true, nil
}

// PutIfGeneration writes data only if the object's current generation
// matches expectedGeneration (0 meaning "must not exist"), returning the
// precondition-failure as ocerr.ConcurrentModification.
func (b *Backend) PutIfGeneration(ctx context.Context, location string, data io.Reader, expectedGeneration int64) error {
	obj := b.object(location)
	if expectedGeneration == 0 {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else {
		obj = obj.If(storage.Conditions{GenerationMatch: expectedGeneration})
	}

	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return ocerr.Wrap(ocerr.BackendError, "gcs.PutIfGeneration", err, "write %s", location)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return ocerr.Wrap(ocerr.ConcurrentModification, "gcs.PutIfGeneration", err, "%s", location)
		}
		return ocerr.Wrap(ocerr.BackendError, "gcs.PutIfGeneration", err, "finalize %s", location)
	}
	return nil
}

// LoadToken implements index.ConditionalObjectStore, using the object
// generation as the opaque token.
func (b *Backend) LoadToken(ctx context.Context, location string) ([]byte, string, bool, error) {
	data, err := b.Get(ctx, location)
	if err != nil {
		if ocerr.Is(err, ocerr.ArchiveNotFound) {
			return nil, "", false, nil
		}
		return nil, "", false, err
	}
	generation, ok, err := b.Generation(ctx, location)
	if err != nil {
		return nil, "", false, err
	}
	if !ok {
		return nil, "", false, nil
	}
	return data, strconv.FormatInt(generation, 10), true, nil
}

// SaveToken implements index.ConditionalObjectStore.
func (b *Backend) SaveToken(ctx context.Context, location string, data []byte, expectedToken string) (string, error) {
	var expectedGeneration int64
	if expectedToken != "" {
		g, err := strconv.ParseInt(expectedToken, 10, 64)
		if err != nil {
			return "", ocerr.Wrap(ocerr.InvalidInput, "gcs.SaveToken", err, "bad token %q", expectedToken)
		}
		expectedGeneration = g
	}

	if err := b.PutIfGeneration(ctx, location, bytes.NewReader(data), expectedGeneration); err != nil {
		return "", err
	}

	generation, _, err := b.Generation(ctx, location)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(generation, 10), nil
}

// isPreconditionFailed reports whether err is GCS's generation-mismatch
// response (surfaced as a googleapi.Error with Code 412, or as
// ErrObjectNotExist when expectedGeneration != 0 and the object vanished).
func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusPreconditionFailed
	}
	return errors.Is(err, storage.ErrObjectNotExist)
}
