package archive_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/archive"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

var _ = Describe("ResolveCompressionMethod", func() {
	log := logger.Discard()

	It("resolves Auto to Zstd with the method default level", func() {
		r, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.Auto}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Method).To(Equal(archive.Zstd))
		Expect(r.Level).To(Equal(3))
	})

	It("forces level 0 for None regardless of request", func() {
		r, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.None, Level: 9}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Method).To(Equal(archive.None))
		Expect(r.Level).To(Equal(0))
	})

	DescribeTable("clamps out-of-range levels",
		func(method archive.Method, requested, expected int) {
			r, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: method, Level: requested}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Level).To(Equal(expected))
		},
		Entry("zstd below min", archive.Zstd, -1, 1),
		Entry("zstd above max", archive.Zstd, 99, 19),
		Entry("gzip above max", archive.Gzip, 42, 9),
	)

	It("returns CompressionUnavailable when zstd is explicitly requested but unavailable", func() {
		archive.SetZstdAvailableForTest(false)
		defer archive.SetZstdAvailableForTest(true)

		_, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.Zstd}, log)
		Expect(ocerr.Is(err, ocerr.CompressionUnavailable)).To(BeTrue())
	})

	It("falls back Auto to Gzip when zstd is unavailable", func() {
		archive.SetZstdAvailableForTest(false)
		defer archive.SetZstdAvailableForTest(true)

		r, err := archive.ResolveCompressionMethod(archive.CompressionRequest{Method: archive.Auto}, log)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Method).To(Equal(archive.Gzip))
	})
})

var _ = Describe("Method extensions", func() {
	It("round-trips extension to method", func() {
		Expect(archive.MethodFromExtension("sha256-abc.tar.zst")).To(Equal(archive.Zstd))
		Expect(archive.MethodFromExtension("sha256-abc.tar.gz")).To(Equal(archive.Gzip))
		Expect(archive.MethodFromExtension("sha256-abc.tar")).To(Equal(archive.None))
	})
})
