package vector_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/flat"
)

var _ = Describe("Refresher", func() {
	var (
		ctx     context.Context
		manager *vector.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		items := inmemory.NewDriver()
		Expect(items.Upsert(ctx, testutils.NewTestItem("a", 0, 1, 1))).To(Succeed())

		var err error
		manager, err = vector.NewManager(vector.ManagerConfig{Items: items, Factory: flat.NewFactory(flat.Config{})})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rebuilds only once the threshold is reached", func() {
		r := vector.NewRefresher(vector.RefresherConfig{Manager: manager, Threshold: 2})

		manager.MarkDirty(1)
		Expect(r.Check(ctx)).To(BeFalse())
		Expect(manager.Stats().Generation).To(BeZero())

		manager.MarkDirty(1)
		Expect(r.Check(ctx)).To(BeTrue())
		Expect(manager.Stats().Generation).To(Equal(uint64(1)))
		Expect(manager.Dirty()).To(BeZero())
	})

	It("rebuilds in the background", func() {
		r := vector.NewRefresher(vector.RefresherConfig{Manager: manager, Interval: 10 * time.Millisecond})
		r.Start(ctx)
		defer r.Stop()

		manager.MarkDirty(1)
		Eventually(func() uint64 { return manager.Stats().Generation }).Should(Equal(uint64(1)))
	})

	It("does nothing with a zero interval", func() {
		r := vector.NewRefresher(vector.RefresherConfig{Manager: manager})
		r.Start(ctx)
		manager.MarkDirty(5)
		Consistently(func() uint64 { return manager.Stats().Generation }, 50*time.Millisecond).Should(BeZero())
		r.Stop()
	})

	It("tolerates Stop without Start", func() {
		r := vector.NewRefresher(vector.RefresherConfig{Manager: manager, Interval: time.Second})
		r.Stop()
	})
})
