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

// Package s3 implements storage.Backend against an S3-compatible object
// store via aws-sdk-go-v2. Uploads switch to multipart past the shared
// threshold; custom endpoints and path-style addressing cover MinIO and
// similar stores.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/scope"
	"github.com/amulya-labs/opencache/storage"
)

// Options configures the S3 backend.
type Options struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	AccessKey      string
	SecretKey      string
	// Prefix is an optional additional path segment ahead of the scope
	// prefix, e.g. a shared bucket used by multiple cache deployments.
	Prefix string
}

// Backend is a storage.Backend backed by an S3-compatible bucket.
type Backend struct {
	client *s3.Client
	bucket string
	root   string
}

// New builds a Backend from opts, loading AWS credentials the standard way
// (static keys if supplied, else the default credential chain) and applying
// a custom endpoint/path-style when set (MinIO and similar).
func New(ctx context.Context, opts Options, sc scope.Scope) (*Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, ocerr.Wrap(ocerr.BackendError, "s3.New", err, "load aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	root := sc.Prefix()
	if opts.Prefix != "" {
		root = opts.Prefix + "/" + root
	}

	return &Backend{client: client, bucket: opts.Bucket, root: root}, nil
}

func (b *Backend) key(location string) string {
	return b.root + "/" + location
}

func (b *Backend) Put(ctx context.Context, location string, data io.Reader, size int64) (string, error) {
	// An unknown size (<= 0) also streams through the uploader, so a large
	// body is never buffered whole in memory.
	if size <= 0 || size >= storage.MultipartThreshold {
		uploader := manager.NewUploader(b.client)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key(location)),
			Body:   data,
		})
		if err != nil {
			return "", ocerr.Wrap(ocerr.BackendError, "s3.Put", err, "multipart upload %s", location)
		}
		return location, nil
	}

	buf, err := io.ReadAll(data)
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "s3.Put", err, "read body for %s", location)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		return "", ocerr.Wrap(ocerr.BackendError, "s3.Put", err, "put %s", location)
	}
	return location, nil
}

func (b *Backend) PutFromPath(ctx context.Context, location, srcPath string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "s3.PutFromPath", err, "open %s", srcPath)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "s3.PutFromPath", err, "stat %s", srcPath)
	}

	loc, err := b.Put(ctx, location, f, info.Size())
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
		return nil, ocerr.Wrap(ocerr.BackendError, "s3.Get", err, "read %s", location)
	}
	return data, nil
}

func (b *Backend) GetStream(ctx context.Context, location string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
	})
	if isNotFound(err) {
		return nil, ocerr.Wrap(ocerr.ArchiveNotFound, "s3.GetStream", err, "%s", location)
	}
	if err != nil {
		return nil, ocerr.Wrap(ocerr.BackendError, "s3.GetStream", err, "get %s", location)
	}
	return out.Body, nil
}

func (b *Backend) Delete(ctx context.Context, location string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
	})
	if err != nil && !isNotFound(err) {
		return ocerr.Wrap(ocerr.BackendError, "s3.Delete", err, "%s", location)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, location string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, ocerr.Wrap(ocerr.BackendError, "s3.Exists", err, "%s", location)
	}
	return true, nil
}

func (b *Backend) GetSize(ctx context.Context, location string) (int64, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
	})
	if isNotFound(err) {
		return 0, ocerr.Wrap(ocerr.ArchiveNotFound, "s3.GetSize", err, "%s", location)
	}
	if err != nil {
		return 0, ocerr.Wrap(ocerr.BackendError, "s3.GetSize", err, "%s", location)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// LoadToken implements index.ConditionalObjectStore, using the object's
// ETag as the opaque token.
func (b *Backend) LoadToken(ctx context.Context, location string) ([]byte, string, bool, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
	})
	if isNotFound(err) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, ocerr.Wrap(ocerr.BackendError, "s3.LoadToken", err, "%s", location)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", false, ocerr.Wrap(ocerr.BackendError, "s3.LoadToken", err, "read %s", location)
	}

	token := ""
	if out.ETag != nil {
		token = *out.ETag
	}
	return data, token, true, nil
}

// SaveToken implements index.ConditionalObjectStore. expectedToken == ""
// means the object must not currently exist (IfNoneMatch: "*"); otherwise
// the write is conditioned on IfMatch == expectedToken.
func (b *Backend) SaveToken(ctx context.Context, location string, data []byte, expectedToken string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(location)),
		Body:   bytes.NewReader(data),
	}
	if expectedToken == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(expectedToken)
	}

	out, err := b.client.PutObject(ctx, in)
	if isPreconditionFailed(err) {
		return "", ocerr.Wrap(ocerr.ConcurrentModification, "s3.SaveToken", err, "%s", location)
	}
	if err != nil {
		return "", ocerr.Wrap(ocerr.BackendError, "s3.SaveToken", err, "%s", location)
	}

	token := ""
	if out.ETag != nil {
		token = *out.ETag
	}
	return token, nil
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
