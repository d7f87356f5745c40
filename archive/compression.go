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

package archive

import (
	"strings"

	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// Method is a compression algorithm selectable for an archive.
type Method uint8

const (
	// Auto resolves to Zstd if the in-process encoder is available, else
	// Gzip. It is never persisted: resolveCompressionMethod always returns
	// a concrete method.
	Auto Method = iota
	Zstd
	Gzip
	None
)

func (m Method) String() string {
	switch m {
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	case None:
		return "none"
	default:
		return "auto"
	}
}

// ParseMethod parses a case-insensitive method name, defaulting to Auto.
func ParseMethod(s string) Method {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zstd":
		return Zstd
	case "gzip":
		return Gzip
	case "none":
		return None
	default:
		return Auto
	}
}

// Extension returns the archive filename suffix for the method, including
// the leading dot and the .tar portion.
func (m Method) Extension() string {
	switch m {
	case Zstd:
		return ".tar.zst"
	case Gzip:
		return ".tar.gz"
	default:
		return ".tar"
	}
}

// MethodFromExtension infers a Method from an archive filename, as used by
// extractArchive to pick a decompressor.
func MethodFromExtension(filename string) Method {
	switch {
	case strings.HasSuffix(filename, ".tar.zst"):
		return Zstd
	case strings.HasSuffix(filename, ".tar.gz"):
		return Gzip
	default:
		return None
	}
}

// levelRange returns the legal [min,max] level for a method. None ignores
// level entirely.
func (m Method) levelRange() (min, max, def int) {
	switch m {
	case Zstd:
		return 1, 19, 3
	case Gzip:
		return 1, 9, 6
	default:
		return 0, 0, 0
	}
}

// CompressionRequest is the caller's compression preference, before
// resolution.
type CompressionRequest struct {
	Method Method
	// Level is optional; zero means "use the method's default".
	Level int
}

// Resolved is a fully resolved, validated compression choice.
type Resolved struct {
	Method Method
	Level  int
}

// ResolveCompressionMethod turns a request into a concrete choice: Auto
// picks Zstd (the klauspost encoder is always available in-process) unless
// explicitly overridden, levels are clamped into range with a logged
// warning, and None always carries level 0.
func ResolveCompressionMethod(req CompressionRequest, log logger.Logger) (Resolved, error) {
	method := req.Method
	if method == Auto {
		method = Zstd
	}

	if !zstdAvailable && method == Zstd {
		if req.Method == Zstd {
			return Resolved{}, ocerr.Wrap(ocerr.CompressionUnavailable, "resolveCompressionMethod", nil, "method %s", Zstd)
		}
		method = Gzip
	}

	if method == None {
		return Resolved{Method: None, Level: 0}, nil
	}

	min, max, def := method.levelRange()
	level := req.Level
	if level == 0 {
		level = def
	} else if level < min {
		if log != nil {
			log.Warnf("compression level %d below minimum for %s, clamped to %d", level, method, min)
		}
		level = min
	} else if level > max {
		if log != nil {
			log.Warnf("compression level %d above maximum for %s, clamped to %d", level, method, max)
		}
		level = max
	}

	return Resolved{Method: method, Level: level}, nil
}

// zstdAvailable is true whenever the klauspost zstd encoder can be
// constructed in-process. It is a constant true in this build: the encoder
// is a pure-Go implementation with no external binary or cgo dependency, so
// it is always available. It stays a variable (not an untyped const) so
// tests can force the gzip fallback path.
var zstdAvailable = true
