package lock_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/lock"
	"github.com/amulya-labs/opencache/logger"
	"github.com/amulya-labs/opencache/ocerr"
)

// fakeObjectStore is an in-memory lock.ConditionalObjectStore for exercising
// RemoteManager's conditional-put acquisition protocol.
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

func (f *fakeObjectStore) Delete(_ context.Context, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, location)
	delete(f.token, location)
	return nil
}

var _ = Describe("RemoteManager", func() {
	var be *fakeObjectStore

	BeforeEach(func() {
		be = newFakeObjectStore()
	})

	It("acquires, runs fn, and releases the lock object", func() {
		m := lock.NewRemoteManager(be, "scope/locks/index.lock", logger.Discard())
		ran := false

		Expect(m.WithLock(context.Background(), func() error {
			ran = true
			_, _, exists, err := be.LoadToken(context.Background(), "scope/locks/index.lock")
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
			return nil
		})).To(Succeed())
		Expect(ran).To(BeTrue())

		_, _, exists, err := be.LoadToken(context.Background(), "scope/locks/index.lock")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("steals a stale lock left behind by a dead holder", func() {
		stale, err := json.Marshal(map[string]any{"lockId": "dead", "timestamp": time.Now().Add(-time.Hour).Unix()})
		Expect(err).NotTo(HaveOccurred())
		_, err = be.SaveToken(context.Background(), "scope/locks/index.lock", stale, "")
		Expect(err).NotTo(HaveOccurred())

		m := lock.NewRemoteManager(be, "scope/locks/index.lock", logger.Discard())
		ran := false
		Expect(m.WithLock(context.Background(), func() error {
			ran = true
			return nil
		})).To(Succeed())
		Expect(ran).To(BeTrue())
	})
})
