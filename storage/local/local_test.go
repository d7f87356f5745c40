package local_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/ocerr"
	"github.com/amulya-labs/opencache/scope"
	"github.com/amulya-labs/opencache/storage/local"
)

var _ = Describe("Backend", func() {
	var (
		ctx context.Context
		b   *local.Backend
	)

	BeforeEach(func() {
		ctx = context.Background()
		sc, ok := scope.New("acme", "widgets")
		Expect(ok).To(BeTrue())
		b = local.New(GinkgoT().TempDir(), sc)
	})

	It("round-trips Put/Get", func() {
		loc, err := b.Put(ctx, "archives/sha256-abc.tar", bytes.NewBufferString("hello"), 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(loc).To(Equal("archives/sha256-abc.tar"))

		data, err := b.Get(ctx, loc)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("hello"))
	})

	It("reports Exists correctly", func() {
		ok, err := b.Exists(ctx, "archives/missing.tar")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		_, err = b.Put(ctx, "archives/x.tar", bytes.NewBufferString("y"), 1)
		Expect(err).NotTo(HaveOccurred())

		ok, err = b.Exists(ctx, "archives/x.tar")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("returns ArchiveNotFound for Get/GetSize on missing objects", func() {
		_, err := b.Get(ctx, "archives/missing.tar")
		Expect(ocerr.Is(err, ocerr.ArchiveNotFound)).To(BeTrue())

		_, err = b.GetSize(ctx, "archives/missing.tar")
		Expect(ocerr.Is(err, ocerr.ArchiveNotFound)).To(BeTrue())
	})

	It("Delete is idempotent", func() {
		Expect(b.Delete(ctx, "archives/never-existed.tar")).To(Succeed())

		_, err := b.Put(ctx, "archives/y.tar", bytes.NewBufferString("z"), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Delete(ctx, "archives/y.tar")).To(Succeed())
		Expect(b.Delete(ctx, "archives/y.tar")).To(Succeed())
	})

	It("PutFromPath renames the source file into place", func() {
		dir := GinkgoT().TempDir()
		src := filepath.Join(dir, "source.tar")
		Expect(os.WriteFile(src, []byte("payload"), 0o644)).To(Succeed())

		loc, err := b.PutFromPath(ctx, "archives/promoted.tar", src)
		Expect(err).NotTo(HaveOccurred())

		_, statErr := os.Stat(src)
		Expect(os.IsNotExist(statErr)).To(BeTrue())

		data, err := b.Get(ctx, loc)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("payload"))
	})

	It("GetStream supports direct streaming reads", func() {
		_, err := b.Put(ctx, "archives/stream.tar", bytes.NewBufferString("streamed"), 8)
		Expect(err).NotTo(HaveOccurred())

		rc, err := b.GetStream(ctx, "archives/stream.tar")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = rc.Close() }()

		data, err := io.ReadAll(rc)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("streamed"))
	})
})
