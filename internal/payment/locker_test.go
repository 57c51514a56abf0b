package payment_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/reservation-payments/internal/payment"
)

var _ = Describe("KeyedMutex", func() {
	var (
		locker *payment.KeyedMutex
		ctx    context.Context
	)

	BeforeEach(func() {
		locker = payment.NewKeyedMutex()
		ctx = context.Background()
	})

	It("admits one holder per key at a time", func() {
		var (
			wg      sync.WaitGroup
			holders int32
			peak    int32
		)

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				unlock, err := locker.Lock(ctx, "42")
				Expect(err).ToNot(HaveOccurred())
				defer unlock()

				current := atomic.AddInt32(&holders, 1)
				for {
					seen := atomic.LoadInt32(&peak)
					if current <= seen || atomic.CompareAndSwapInt32(&peak, seen, current) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&holders, -1)
			}()
		}
		wg.Wait()

		Expect(atomic.LoadInt32(&peak)).To(Equal(int32(1)))
	})

	It("does not block other keys", func() {
		unlock, err := locker.Lock(ctx, "1")
		Expect(err).ToNot(HaveOccurred())
		defer unlock()

		done := make(chan struct{})
		go func() {
			other, err := locker.Lock(ctx, "2")
			if err == nil {
				other()
			}
			close(done)
		}()

		Eventually(done).Should(BeClosed())
	})

	It("gives up when the context ends while waiting", func() {
		unlock, err := locker.Lock(ctx, "1")
		Expect(err).ToNot(HaveOccurred())
		defer unlock()

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err = locker.Lock(waitCtx, "1")

		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("tolerates a second unlock call", func() {
		unlock, err := locker.Lock(ctx, "1")
		Expect(err).ToNot(HaveOccurred())

		unlock()
		unlock()

		again, err := locker.Lock(ctx, "1")
		Expect(err).ToNot(HaveOccurred())
		again()
	})
})

var _ = Describe("NoopLocker", func() {
	It("never blocks", func() {
		locker := payment.NoopLocker{}

		first, err := locker.Lock(context.Background(), "1")
		Expect(err).ToNot(HaveOccurred())
		second, err := locker.Lock(context.Background(), "1")
		Expect(err).ToNot(HaveOccurred())

		first()
		second()
	})
})
