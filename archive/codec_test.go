package archive_test

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/archive"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// readTree flattens a directory into relative-path -> content, so two trees
// can be compared byte-for-byte with cmp.Diff.
func readTree(root string) map[string]string {
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	Expect(err).NotTo(HaveOccurred())
	return out
}

var _ = Describe("CreateArchive and ExtractArchive", func() {
	var workDir, archiveDir string
	log := logger.Discard()

	BeforeEach(func() {
		workDir = GinkgoT().TempDir()
		archiveDir = GinkgoT().TempDir()

		Expect(os.MkdirAll(filepath.Join(workDir, "node_modules", "pkg"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(workDir, "node_modules", "pkg", "index.js"), []byte("module.exports = 1;\n"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(workDir, "go.sum"), []byte("checksum-data\n"), 0o644)).To(Succeed())
	})

	It("round-trips a directory through zstd", func() {
		comp, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.Zstd}, log)
		Expect(err).NotTo(HaveOccurred())

		res, err := archive.CreateArchive([]string{"node_modules", "go.sum"}, archiveDir, workDir, comp, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ArchivePath).To(HaveSuffix(".tar.zst"))
		Expect(res.Hash).To(HaveLen(16))
		Expect(res.SizeBytes).To(BeNumerically(">", 0))
		Expect(res.RawSizeBytes).To(BeNumerically(">=", res.SizeBytes))

		restoreDir := GinkgoT().TempDir()
		Expect(archive.ExtractArchive(res.ArchivePath, restoreDir)).To(Succeed())

		Expect(cmp.Diff(readTree(workDir), readTree(restoreDir))).To(BeEmpty())
	})

	It("round-trips through gzip and none", func() {
		for _, m := range []archive.Method{archive.Gzip, archive.None} {
			comp, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: m}, log)
			Expect(err).NotTo(HaveOccurred())

			res, err := archive.CreateArchive([]string{"go.sum"}, archiveDir, workDir, comp, log)
			Expect(err).NotTo(HaveOccurred())

			restoreDir := GinkgoT().TempDir()
			Expect(archive.ExtractArchive(res.ArchivePath, restoreDir)).To(Succeed())
			data, err := os.ReadFile(filepath.Join(restoreDir, "go.sum"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("checksum-data\n"))
		}
	})

	It("produces the same hash for the same file set", func() {
		comp, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.None}, log)
		Expect(err).NotTo(HaveOccurred())

		r1, err := archive.CreateArchive([]string{"go.sum"}, archiveDir, workDir, comp, log)
		Expect(err).NotTo(HaveOccurred())

		archiveDir2 := GinkgoT().TempDir()
		r2, err := archive.CreateArchive([]string{"go.sum"}, archiveDir2, workDir, comp, log)
		Expect(err).NotTo(HaveOccurred())

		Expect(r1.Hash).To(Equal(r2.Hash))
	})

	It("returns NoFilesToCache when no paths resolve", func() {
		comp, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.None}, log)
		Expect(err).NotTo(HaveOccurred())

		_, err = archive.CreateArchive([]string{"does-not-exist-*"}, archiveDir, workDir, comp, log)
		Expect(ocerr.Is(err, ocerr.NoFilesToCache)).To(BeTrue())
	})

	It("leaves no temp tar behind after a successful create", func() {
		comp, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.None}, log)
		Expect(err).NotTo(HaveOccurred())

		_, err = archive.CreateArchive([]string{"go.sum"}, archiveDir, workDir, comp, log)
		Expect(err).NotTo(HaveOccurred())

		entries, err := os.ReadDir(archiveDir)
		Expect(err).NotTo(HaveOccurred())
		for _, e := range entries {
			Expect(e.Name()).NotTo(HaveSuffix(".tmp"))
		}
	})

	It("fails to extract a missing archive with ArchiveNotFound", func() {
		err := archive.ExtractArchive(filepath.Join(archiveDir, "sha256-missing.tar.zst"), GinkgoT().TempDir())
		Expect(ocerr.Is(err, ocerr.ArchiveNotFound)).To(BeTrue())
	})
})
