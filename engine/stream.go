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

package engine

import (
	"io"
	"os"

	"github.com/amulya-labs/opencache/ocerr"
)

// spoolToTemp copies rc to a local temp file named after location's
// extension, for backends (s3, gcs) that have no local path the archive
// codec can decompress directly.
func spoolToTemp(rc io.Reader, location string) (string, error) {
	f, err := os.CreateTemp("", "opencache-restore-*"+extOf(location))
	if err != nil {
		return "", ocerr.Wrap(ocerr.FatalIO, "spoolToTemp", err, "create temp file")
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", ocerr.Wrap(ocerr.FatalIO, "spoolToTemp", err, "spool %s", location)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", ocerr.Wrap(ocerr.FatalIO, "spoolToTemp", err, "close temp file")
	}
	return f.Name(), nil
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}

func extOf(location string) string {
	for _, ext := range []string{".tar.zst", ".tar.gz", ".tar"} {
		if len(location) >= len(ext) && location[len(location)-len(ext):] == ext {
			return ext
		}
	}
	return ""
}
