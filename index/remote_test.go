package index_test

import (
	"context"
	"strconv"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/index"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// fakeObjectStore is an in-memory index.ConditionalObjectStore used to
// exercise RemoteStore's optimistic-concurrency protocol without a real
// cloud backend.
type fakeObjectStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	token map[string]int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{data: map[string][]byte{}, token: map[string]int{}}
}

func (f *fakeObjectStore) LoadToken(_ context.Context, location string) ([]byte, string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[location]
	if !ok {
		return nil, "", false, nil
	}
	return data, strconv.Itoa(f.token[location]), true, nil
}

func (f *fakeObjectStore) SaveToken(_ context.Context, location string, data []byte, expectedToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current := f.token[location]
	_, exists := f.data[location]

	if expectedToken == "" {
		if exists {
			return "", ocerr.New(ocerr.ConcurrentModification)
		}
	} else if strconv.Itoa(current) != expectedToken {
		return "", ocerr.New(ocerr.ConcurrentModification)
	}

	f.data[location] = data
	f.token[location] = current + 1
	return strconv.Itoa(current + 1), nil
}

var _ = Describe("RemoteStore", func() {
	var (
		ctx context.Context
		be  *fakeObjectStore
		s   *index.RemoteStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		be = newFakeObjectStore()
		s = index.NewRemoteStore(be, "scope/index.json", logger.Discard())
	})

	It("returns an empty index when nothing has been written", func() {
		idx, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Entries).To(BeEmpty())
	})

	It("round-trips Save then Load", func() {
		_, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Save(ctx, index.CacheIndex{Version: "2", Entries: []index.CacheEntry{{Key: "k1"}}})).To(Succeed())

		idx, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(idx.Entries).To(HaveLen(1))
	})

	It("surfaces ConcurrentModification when another writer raced ahead", func() {
		_, err := s.Load(ctx)
		Expect(err).NotTo(HaveOccurred())

		// A second store instance loads the same (empty) state and wins the race.
		other := index.NewRemoteStore(be, "scope/index.json", logger.Discard())
		_, err = other.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(other.Save(ctx, index.CacheIndex{Version: "2", Entries: []index.CacheEntry{{Key: "winner"}}})).To(Succeed())

		err = s.Save(ctx, index.CacheIndex{Version: "2", Entries: []index.CacheEntry{{Key: "loser"}}})
		Expect(ocerr.Is(err, ocerr.ConcurrentModification)).To(BeTrue())
	})
})
