package feed

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("userLocks", func() {
	var locks *userLocks

	BeforeEach(func() {
		locks = newUserLocks()
	})

	It("blocks a second holder until release", func() {
		release, err := locks.acquire(context.Background(), "alice")
		Expect(err).NotTo(HaveOccurred())

		acquired := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			r, err := locks.acquire(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			close(acquired)
			r()
		}()

		Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())
		release()
		Eventually(acquired).Should(BeClosed())
		Eventually(locks.active).Should(BeZero())
	})

	It("does not block other users", func() {
		release, err := locks.acquire(context.Background(), "alice")
		Expect(err).NotTo(HaveOccurred())
		defer release()

		other, err := locks.acquire(context.Background(), "bob")
		Expect(err).NotTo(HaveOccurred())
		other()
	})

	It("gives up when the context expires", func() {
		release, err := locks.acquire(context.Background(), "alice")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = locks.acquire(ctx, "alice")
		Expect(err).To(MatchError(context.DeadlineExceeded))

		release()
		Expect(locks.active()).To(BeZero())
	})
})
