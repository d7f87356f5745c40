package index_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/index"
	"github.com/amulya-labs/opencache/logger"
)

var _ = Describe("LocalStore", func() {
	var (
		ctx context.Context
		dir string
		s   *index.LocalStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		s = index.NewLocalStore(dir, logger.Discard())
	})

	It("returns an empty v2 index when nothing exists yet", func() {
		idx, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Version).To(Equal(index.CurrentVersion))
		Expect(idx.Entries).To(BeEmpty())
	})

	It("round-trips Save then Load", func() {
		idx := index.CacheIndex{Version: "2", Entries: []index.CacheEntry{
			{Key: "k1", ArchivePath: "archives/sha256-a.tar.zst", SizeBytes: 10, CreatedAt: time.Now(), AccessedAt: time.Now()},
		}}
		Expect(s.Save(ctx, idx)).To(Succeed())

		loaded, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Entries).To(HaveLen(1))
		Expect(loaded.Entries[0].Key).To(Equal("k1"))
	})

	It("leaves no .tmp files behind after Save", func() {
		Expect(s.Save(ctx, index.CacheIndex{Version: "2"})).To(Succeed())
		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		for _, e := range entries {
			Expect(e.Name()).To(Equal("index.json"))
		}
	})

	It("migrates a v1 index by copying createdAt into accessedAt", func() {
		created := time.Now().Truncate(time.Second)
		raw := map[string]any{
			"version": "1",
			"entries": []map[string]any{
				{"key": "k1", "archivePath": "archives/a.tar", "createdAt": created, "sizeBytes": 5},
			},
		}
		data, err := json.Marshal(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(dir, "index.json"), data, 0o644)).To(Succeed())

		loaded, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Version).To(Equal(index.CurrentVersion))
		Expect(loaded.Entries[0].AccessedAt.Unix()).To(Equal(created.Unix()))
	})

	It("rebuilds from manifests when index.json is corrupt", func() {
		archivesDir := filepath.Join(dir, "archives")
		Expect(os.MkdirAll(archivesDir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(archivesDir, "sha256-abc.tar.zst"), []byte("data"), 0o644)).To(Succeed())

		manifest := index.ArchiveManifest{
			Version: "2", Key: "k1", CreatedAt: time.Now(), SizeBytes: 4,
			ArchiveFilename: "sha256-abc.tar.zst", CompressionMethod: "zstd", AccessedAt: time.Now(),
		}
		mdata, err := json.Marshal(manifest)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(archivesDir, "sha256-abc.meta.json"), mdata, 0o644)).To(Succeed())

		Expect(os.WriteFile(filepath.Join(dir, "index.json"), []byte("not json"), 0o644)).To(Succeed())

		loaded, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Entries).To(HaveLen(1))
		Expect(loaded.Entries[0].Key).To(Equal("k1"))
	})
})

var _ = Describe("Rebuild", func() {
	It("counts archives without a manifest as orphans", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "sha256-orphan.tar"), []byte("x"), 0o644)).To(Succeed())

		report, err := index.Rebuild(dir, logger.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.OrphanCount).To(Equal(1))
		Expect(report.Index.Entries).To(BeEmpty())
	})

	It("drops manifests whose archive is missing", func() {
		dir := GinkgoT().TempDir()
		manifest := index.ArchiveManifest{Version: "2", Key: "k1", ArchiveFilename: "sha256-missing.tar"}
		data, err := json.Marshal(manifest)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(dir, "sha256-missing.meta.json"), data, 0o644)).To(Succeed())

		report, err := index.Rebuild(dir, logger.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.DroppedCount).To(Equal(1))
		Expect(report.Index.Entries).To(BeEmpty())
	})

	It("removes stale .tmp files older than one hour", func() {
		dir := GinkgoT().TempDir()
		stalePath := filepath.Join(dir, "index.json.tmp.old")
		Expect(os.WriteFile(stalePath, []byte("x"), 0o644)).To(Succeed())
		old := time.Now().Add(-2 * time.Hour)
		Expect(os.Chtimes(stalePath, old, old)).To(Succeed())

		_, err := index.Rebuild(dir, logger.Discard())
		Expect(err).NotTo(HaveOccurred())

		_, statErr := os.Stat(stalePath)
		Expect(os.IsNotExist(statErr)).To(BeTrue())
	})
})
