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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amulya-labs/opencache/logger"
)

// manifestExtensions lists archive extensions in the order tried when
// pairing a manifest back to its archive file.
var manifestExtensions = []string{".tar.zst", ".tar.gz", ".tar.bz2", ".tar"}

// RebuildReport summarizes a manifest-based rebuild for operator visibility.
type RebuildReport struct {
	Index        CacheIndex
	OrphanCount  int
	DroppedCount int
}

// Rebuild scans archivesDir for sidecar "*.meta.json" manifests and
// reconstructs an index from them. Archives present without a matching
// manifest are counted as orphans and logged; manifests whose archive is
// missing are dropped. Stale ".tmp" files older than one hour are removed
// before scanning.
func Rebuild(archivesDir string, log logger.Logger) (RebuildReport, error) {
	cleanStaleTemp(archivesDir, log)

	entries, err := os.ReadDir(archivesDir)
	if os.IsNotExist(err) {
		return RebuildReport{Index: CacheIndex{Version: CurrentVersion}}, nil
	}
	if err != nil {
		return RebuildReport{}, err
	}

	manifestBase := make(map[string]bool)
	archiveBase := make(map[string]bool)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.Contains(name, ".tmp") {
			continue
		}
		if strings.HasSuffix(name, ".meta.json") {
			manifestBase[strings.TrimSuffix(name, ".meta.json")] = true
			continue
		}
		for _, ext := range manifestExtensions {
			if strings.HasSuffix(name, ext) {
				archiveBase[strings.TrimSuffix(name, ext)] = true
				break
			}
		}
	}

	report := RebuildReport{Index: CacheIndex{Version: CurrentVersion}}

	for base := range manifestBase {
		data, err := os.ReadFile(filepath.Join(archivesDir, base+".meta.json"))
		if err != nil {
			if log != nil {
				log.Warnf("rebuild: read manifest %s: %v", base, err)
			}
			report.DroppedCount++
			continue
		}

		var m ArchiveManifest
		if err := json.Unmarshal(data, &m); err != nil || m.Version != CurrentVersion || m.Key == "" || m.ArchiveFilename == "" {
			if log != nil {
				log.Warnf("rebuild: invalid manifest %s", base)
			}
			report.DroppedCount++
			continue
		}

		archivePath := filepath.Join("archives", m.ArchiveFilename)
		if _, err := os.Stat(filepath.Join(archivesDir, m.ArchiveFilename)); err != nil {
			if log != nil {
				log.Warnf("rebuild: manifest %s references missing archive %s", base, m.ArchiveFilename)
			}
			report.DroppedCount++
			continue
		}

		report.Index.Entries = append(report.Index.Entries, CacheEntry{
			Key:         m.Key,
			ArchivePath: filepath.ToSlash(archivePath),
			CreatedAt:   m.CreatedAt,
			SizeBytes:   m.SizeBytes,
			AccessedAt:  m.AccessedAt,
			ExpiresAt:   m.ExpiresAt,
		})

		delete(archiveBase, base)
	}

	report.OrphanCount = len(archiveBase)
	if report.OrphanCount > 0 && log != nil {
		log.Warnf("rebuild: %d archive(s) without a manifest are now orphaned", report.OrphanCount)
	}

	return report, nil
}

func cleanStaleTemp(dir string, log logger.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-1 * time.Hour)
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && log != nil {
			log.Warnf("rebuild: remove stale temp %s: %v", path, err)
		}
	}
}
