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
	"time"

	"github.com/amulya-labs/opencache/archive"
)

// Metrics summarizes one save or restore transfer. Purely informational:
// nothing in the engine consults a Metrics value for control flow.
type Metrics struct {
	Duration time.Duration
	// BytesTransferred is the compressed archive size moved through the
	// backend during the operation.
	BytesTransferred int64
	// CompressionRatio is uncompressed tar bytes over archive bytes; 0 when
	// unknown (restores, empty archives).
	CompressionRatio float64
}

func newSaveMetrics(res archive.CreateResult, elapsed time.Duration) Metrics {
	m := Metrics{Duration: elapsed, BytesTransferred: res.SizeBytes}
	if res.SizeBytes > 0 {
		m.CompressionRatio = float64(res.RawSizeBytes) / float64(res.SizeBytes)
	}
	return m
}
