package lock_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amulya-labs/opencache/lock"
	"github.com/amulya-labs/opencache/logger"
)

var _ = Describe("LocalManager", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "index.json.lock")
	})

	It("runs fn under the lock and releases it afterward", func() {
		m := lock.NewLocalManager(path, logger.Discard())
		ran := false

		Expect(m.WithLock(context.Background(), func() error {
			ran = true
			return nil
		})).To(Succeed())
		Expect(ran).To(BeTrue())

		// The lock must be released: a second call succeeds immediately.
		Expect(m.WithLock(context.Background(), func() error { return nil })).To(Succeed())
	})

	It("propagates fn's error while still releasing the lock", func() {
		m := lock.NewLocalManager(path, logger.Discard())
		boom := errors.New("boom")

		err := m.WithLock(context.Background(), func() error { return boom })
		Expect(err).To(Equal(boom))

		Expect(m.WithLock(context.Background(), func() error { return nil })).To(Succeed())
	})

	It("serializes concurrent in-process callers", func() {
		m := lock.NewLocalManager(path, logger.Discard())
		var active int32
		var maxActive int32
		var wg sync.WaitGroup

		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = m.WithLock(context.Background(), func() error {
					n := atomic.AddInt32(&active, 1)
					for {
						cur := atomic.LoadInt32(&maxActive)
						if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
							break
						}
					}
					atomic.AddInt32(&active, -1)
					return nil
				})
			}()
		}
		wg.Wait()

		Expect(atomic.LoadInt32(&maxActive)).To(Equal(int32(1)))
	})
})
