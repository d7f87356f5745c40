package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/archive"
	"github.com/amulya-labs/opencache/engine"
	"github.com/amulya-labs/opencache/index"
	"github.com/amulya-labs/opencache/lock"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/scope"
	"github.com/amulya-labs/opencache/storage/local"
)

// fixture wires a real local backend, local index store and local lock
// manager together, matching how a single-machine CI runner would use the
// engine, without requiring cloud credentials.
type fixture struct {
	eng      *engine.Engine
	workDir  string
	scopeDir string
}

func newFixture(opts engine.Options) *fixture {
	root := GinkgoT().TempDir()
	sc, ok := scope.New("acme", "widgets")
	Expect(ok).To(BeTrue())

	backend := local.New(root, sc)
	scopeDir := backend.GetFullPath("")
	idxStore := index.NewLocalStore(scopeDir, logger.Discard())
	locks := lock.NewLocalManager(filepath.Join(scopeDir, "index.json.lock"), logger.Discard())

	workDir := GinkgoT().TempDir()
	opts.WorkingDir = workDir
	if opts.Compression == (archive.CompressionRequest{}) {
		opts.Compression = archive.CompressionRequest{Method: archive.None}
	}

	return &fixture{
		eng:      engine.New(backend, idxStore, locks, logger.Discard(), opts),
		workDir:  workDir,
		scopeDir: scopeDir,
	}
}

func (f *fixture) writeFile(name, content string) string {
	full := filepath.Join(f.workDir, name)
	Expect(os.MkdirAll(filepath.Dir(full), 0o755)).To(Succeed())
	Expect(os.WriteFile(full, []byte(content), 0o644)).To(Succeed())
	return name
}

var _ = Describe("Engine", func() {
	ctx := context.Background()

	It("saves and restores an exact key hit", func() {
		f := newFixture(engine.Options{})
		f.writeFile("node_modules/pkg/index.js", "module.exports = 1;")

		entry, err := f.eng.Save(ctx, "npm-linux-abc123", []string{"node_modules"})
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Key).To(Equal("npm-linux-abc123"))
		Expect(entry.SizeBytes).To(BeNumerically(">", 0))

		result, err := f.eng.Resolve(ctx, "npm-linux-abc123", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsExactMatch).To(BeTrue())
		Expect(result.Entry).NotTo(BeNil())
		Expect(result.MatchedKey).To(Equal("npm-linux-abc123"))

		exists, err := f.eng.Exists(ctx, "npm-linux-abc123")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("falls back to a restore key prefix when no exact match exists", func() {
		f := newFixture(engine.Options{})
		f.writeFile("vendor/lib.go", "package lib")

		_, err := f.eng.Save(ctx, "go-linux-deadbeef", []string{"vendor"})
		Expect(err).NotTo(HaveOccurred())

		result, err := f.eng.Resolve(ctx, "go-linux-newhash", []string{"go-linux-"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsExactMatch).To(BeFalse())
		Expect(result.MatchedKey).To(Equal("go-linux-deadbeef"))
	})

	It("restores files into the working directory", func() {
		f := newFixture(engine.Options{})
		f.writeFile("build/out.bin", "payload")

		entry, err := f.eng.Save(ctx, "build-key", []string{"build"})
		Expect(err).NotTo(HaveOccurred())

		Expect(os.RemoveAll(filepath.Join(f.workDir, "build"))).To(Succeed())

		Expect(f.eng.Restore(ctx, entry)).To(Succeed())

		data, err := os.ReadFile(filepath.Join(f.workDir, "build", "out.bin"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("payload"))
	})

	It("treats an expired entry as absent on resolve and exists", func() {
		f := newFixture(engine.Options{TTLDays: -1})
		f.writeFile("cache.bin", "data")

		_, err := f.eng.Save(ctx, "expiring-key", []string{"cache.bin"})
		Expect(err).NotTo(HaveOccurred())

		result, err := f.eng.Resolve(ctx, "expiring-key", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Entry).To(BeNil())

		exists, err := f.eng.Exists(ctx, "expiring-key")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("is idempotent: saving an existing live key returns the original entry untouched", func() {
		f := newFixture(engine.Options{})
		f.writeFile("a.txt", "first")

		first, err := f.eng.Save(ctx, "dup-key", []string{"a.txt"})
		Expect(err).NotTo(HaveOccurred())

		f.writeFile("a.txt", "second-should-be-ignored")
		second, err := f.eng.Save(ctx, "dup-key", []string{"a.txt"})
		Expect(err).NotTo(HaveOccurred())

		Expect(second.ArchivePath).To(Equal(first.ArchivePath))
		Expect(second.CreatedAt).To(BeTemporally("==", first.CreatedAt))

		idx, err := f.eng.GetIndex(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Entries).To(HaveLen(1))
	})

	It("evicts the least recently accessed entry when over the size budget", func() {
		// ~3KB (3006 bytes): big enough that one small tar archive fits, too small for two.
		f := newFixture(engine.Options{MaxCacheSizeGB: 0.0000028})
		f.writeFile("old.txt", stringsRepeat("a", 300))
		_, err := f.eng.Save(ctx, "old-key", []string{"old.txt"})
		Expect(err).NotTo(HaveOccurred())

		time.Sleep(2 * time.Millisecond)

		f.writeFile("new.txt", stringsRepeat("b", 300))
		_, err = f.eng.Save(ctx, "new-key", []string{"new.txt"})
		Expect(err).NotTo(HaveOccurred())

		idx, err := f.eng.GetIndex(ctx)
		Expect(err).NotTo(HaveOccurred())

		var keys []string
		for _, e := range idx.Entries {
			keys = append(keys, e.Key)
		}
		Expect(keys).To(ContainElement("new-key"))
		Expect(keys).NotTo(ContainElement("old-key"))
	})

	It("accepts a single entry larger than the size budget without evicting everything", func() {
		f := newFixture(engine.Options{MaxCacheSizeGB: 0.0000001}) // ~100 bytes
		f.writeFile("big.txt", stringsRepeat("x", 5000))

		entry, err := f.eng.Save(ctx, "big-key", []string{"big.txt"})
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Key).To(Equal("big-key"))

		exists, err := f.eng.Exists(ctx, "big-key")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("reports informational transfer metrics alongside save and restore", func() {
		f := newFixture(engine.Options{Compression: archive.CompressionRequest{Method: archive.Gzip}})
		f.writeFile("deps/lib.js", stringsRepeat("var x = 1;\n", 200))

		entry, saveMetrics, err := f.eng.SaveWithMetrics(ctx, "metrics-key", []string{"deps"})
		Expect(err).NotTo(HaveOccurred())
		Expect(saveMetrics.BytesTransferred).To(Equal(entry.SizeBytes))
		Expect(saveMetrics.CompressionRatio).To(BeNumerically(">", 1))
		Expect(saveMetrics.Duration).To(BeNumerically(">", 0))

		restoreMetrics, err := f.eng.RestoreWithMetrics(ctx, entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(restoreMetrics.BytesTransferred).To(Equal(entry.SizeBytes))
	})

	It("recovers the index from manifests after index.json is overwritten with garbage", func() {
		f := newFixture(engine.Options{})
		f.writeFile("out.bin", "artifact")

		entry, err := f.eng.Save(ctx, "recover-key", []string{"out.bin"})
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(filepath.Join(f.scopeDir, "index.json"), []byte("{not json"), 0o644)).To(Succeed())

		idx, err := f.eng.GetIndex(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Entries).To(HaveLen(1))
		Expect(idx.Entries[0].Key).To(Equal("recover-key"))
		Expect(idx.Entries[0].ArchivePath).To(Equal(entry.ArchivePath))
	})

	It("fails restore with ArchiveNotFound when the underlying archive is missing", func() {
		f := newFixture(engine.Options{})
		entry := index.CacheEntry{Key: "ghost", ArchivePath: "archives/does-not-exist.tar"}

		err := f.eng.Restore(ctx, entry)
		Expect(ocerr.Is(err, ocerr.ArchiveNotFound)).To(BeTrue())
	})
})

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, s...)
	}
	return string(out[:n])
}
