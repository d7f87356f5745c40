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

// Package archive implements the content-addressed archive codec: packing a
// working-directory file set into a compressed tar, and the inverse. It has
// no knowledge of the index or storage backend; it only ever reads and
// writes local paths.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// zstdLongWindow is the 1GiB window of zstd --long=30, the largest window the
// decoder accepts. The encoder's window is zstd.MaxWindowSize (512MiB), the
// largest the klauspost encoder supports.
const zstdLongWindow = 1 << 30

// CreateResult describes a freshly built archive.
type CreateResult struct {
	// ArchivePath is the path of the finished, compressed archive file.
	ArchivePath string
	// Hash is the first 16 hex characters of the SHA-256 of the
	// uncompressed tar stream.
	Hash string
	// SizeBytes is the size of the compressed archive file.
	SizeBytes int64
	// RawSizeBytes is the size of the uncompressed tar stream.
	RawSizeBytes int64
	Method       Method
}

// CreateArchive resolves paths (glob patterns) against workingDir, tars them,
// compresses the result with the resolved method, and writes the final
// archive under archiveDir named "sha256-<16hex><ext>". The temporary
// uncompressed tar is always removed before returning.
func CreateArchive(paths []string, archiveDir, workingDir string, comp Resolved, log logger.Logger) (CreateResult, error) {
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return CreateResult{}, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "getwd")
		}
		workingDir = wd
	}

	resolved, err := resolveGlobs(paths, workingDir)
	if err != nil {
		return CreateResult{}, err
	}
	if len(resolved) == 0 {
		return CreateResult{}, ocerr.New(ocerr.NoFilesToCache)
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return CreateResult{}, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "mkdir %s", archiveDir)
	}

	tmpTar, err := os.CreateTemp(archiveDir, "tar-*.tmp")
	if err != nil {
		return CreateResult{}, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "create temp tar")
	}
	tmpTarPath := tmpTar.Name()
	defer func() {
		_ = os.Remove(tmpTarPath)
	}()

	hasher := sha256.New()
	if err := writeTar(io.MultiWriter(tmpTar, hasher), workingDir, resolved); err != nil {
		_ = tmpTar.Close()
		return CreateResult{}, err
	}
	if err := tmpTar.Close(); err != nil {
		return CreateResult{}, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "close temp tar")
	}

	hash := hex.EncodeToString(hasher.Sum(nil))[:16]
	finalName := fmt.Sprintf("sha256-%s%s", hash, comp.Method.Extension())
	finalPath := filepath.Join(archiveDir, finalName)

	rawInfo, err := os.Stat(tmpTarPath)
	if err != nil {
		return CreateResult{}, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "stat temp tar")
	}

	size, err := compressFile(tmpTarPath, finalPath, comp, log)
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{ArchivePath: finalPath, Hash: hash, SizeBytes: size, RawSizeBytes: rawInfo.Size(), Method: comp.Method}, nil
}

// ExtractArchive infers compression from the archive's extension, streams it
// through the matching decompressor, and unpacks the tar into targetDir.
func ExtractArchive(archivePath, targetDir string) error {
	method := MethodFromExtension(archivePath)

	f, err := os.Open(archivePath)
	if err != nil {
		return ocerr.Wrap(ocerr.ArchiveNotFound, "ExtractArchive", err, "open %s", archivePath)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	switch method {
	case Zstd:
		zr, err := zstd.NewReader(f, zstd.WithDecoderMaxWindow(zstdLongWindow))
		if err != nil {
			return ocerr.Wrap(ocerr.BackendError, "ExtractArchive", err, "zstd reader")
		}
		defer zr.Close()
		r = zr
	case Gzip:
		gr, err := gzip.NewReader(f)
		if err != nil {
			return ocerr.Wrap(ocerr.BackendError, "ExtractArchive", err, "gzip reader")
		}
		defer func() { _ = gr.Close() }()
		r = gr
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "mkdir %s", targetDir)
	}

	return untar(r, targetDir)
}

func resolveGlobs(patterns []string, workingDir string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	for _, p := range patterns {
		pattern := p
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(workingDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, ocerr.Wrap(ocerr.InvalidInput, "CreateArchive", err, "bad pattern %q", p)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				matches = []string{pattern}
			}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}

	sort.Strings(out)
	return out, nil
}

func writeTar(w io.Writer, workingDir string, roots []string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(workingDir, path)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel)

			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				if _, err := io.Copy(tw, f); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "walk %s", root)
		}
	}
	return nil
}

func untar(r io.Reader, targetDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return ocerr.Wrap(ocerr.BackendError, "ExtractArchive", err, "tar next")
		}

		target := filepath.Join(targetDir, filepath.FromSlash(hdr.Name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "mkdir %s", target)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "mkdir %s", filepath.Dir(target))
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "create %s", target)
			}
			// #nosec G110 -- archive contents are produced by this same
			// engine's save path; no untrusted-input decompression bomb
			// concern in the CI-cache use case.
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "write %s", target)
			}
			if err := out.Close(); err != nil {
				return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "close %s", target)
			}
		case tar.TypeSymlink:
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return ocerr.Wrap(ocerr.FatalIO, "ExtractArchive", err, "symlink %s", target)
			}
		}
		if hdr.ModTime.After(time.Unix(0, 0)) {
			_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
		}
	}
}

func compressFile(srcPath, dstPath string, comp Resolved, log logger.Logger) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "open temp tar")
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "create %s", dstPath)
	}

	var writeErr error
	switch comp.Method {
	case Zstd:
		zw, err := zstd.NewWriter(dst,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(comp.Level)),
			zstd.WithWindowSize(zstd.MaxWindowSize),
		)
		if err != nil {
			_ = dst.Close()
			return 0, ocerr.Wrap(ocerr.BackendError, "CreateArchive", err, "zstd writer")
		}
		if _, writeErr = io.Copy(zw, src); writeErr == nil {
			writeErr = zw.Close()
		}
	case Gzip:
		gw, err := gzip.NewWriterLevel(dst, comp.Level)
		if err != nil {
			_ = dst.Close()
			return 0, ocerr.Wrap(ocerr.BackendError, "CreateArchive", err, "gzip writer")
		}
		if _, writeErr = io.Copy(gw, src); writeErr == nil {
			writeErr = gw.Close()
		}
	default:
		_, writeErr = io.Copy(dst, src)
	}

	if writeErr != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return 0, ocerr.Wrap(ocerr.BackendError, "CreateArchive", writeErr, "compress %s", comp.Method)
	}

	if err := dst.Close(); err != nil {
		return 0, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "close %s", dstPath)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return 0, ocerr.Wrap(ocerr.FatalIO, "CreateArchive", err, "stat %s", dstPath)
	}

	if log != nil {
		log.Debugf("archive %s written, %d bytes, method=%s", dstPath, info.Size(), comp.Method)
	}

	return info.Size(), nil
}
