package index_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/index"
)

var _ = Describe("CacheIndex", func() {
	It("Clone deep-copies expiresAt pointers", func() {
		exp := time.Now().Add(time.Hour)
		idx := index.CacheIndex{Version: "2", Entries: []index.CacheEntry{
			{Key: "a", ExpiresAt: &exp},
		}}

		clone := idx.Clone()
		*clone.Entries[0].ExpiresAt = exp.Add(time.Hour)

		Expect(*idx.Entries[0].ExpiresAt).To(Equal(exp))
	})

	It("Find locates an entry by key", func() {
		idx := index.CacheIndex{Entries: []index.CacheEntry{{Key: "a"}, {Key: "b"}}}
		e, ok := idx.Find("b")
		Expect(ok).To(BeTrue())
		Expect(e.Key).To(Equal("b"))

		_, ok = idx.Find("missing")
		Expect(ok).To(BeFalse())
	})

	It("WithoutKey drops only the matching entry", func() {
		idx := index.CacheIndex{Entries: []index.CacheEntry{{Key: "a"}, {Key: "b"}}}
		out := idx.WithoutKey("a")
		Expect(out.Entries).To(HaveLen(1))
		Expect(out.Entries[0].Key).To(Equal("b"))
	})

	It("Expired respects the expiresAt boundary", func() {
		now := time.Now()
		past := now.Add(-time.Minute)
		e := index.CacheEntry{ExpiresAt: &past}
		Expect(e.Expired(now)).To(BeTrue())

		future := now.Add(time.Minute)
		e2 := index.CacheEntry{ExpiresAt: &future}
		Expect(e2.Expired(now)).To(BeFalse())

		e3 := index.CacheEntry{}
		Expect(e3.Expired(now)).To(BeFalse())
	})
})
