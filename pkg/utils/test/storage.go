package testutils

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/storage"
)

// DriverFactory builds a fresh, empty driver. The hook, when non-nil, must be
// installed as the driver's commit hook.
type DriverFactory func(hook storage.CommitHook) storage.Driver

// ItBehavesLikeAStorageDriver registers the behavior every storage.Driver
// must share. Call it from inside a Describe.
func ItBehavesLikeAStorageDriver(newDriver DriverFactory) {
	var (
		ctx    context.Context
		driver storage.Driver
	)

	seed := func(items ...*storage.Item) {
		for _, it := range items {
			Expect(driver.Upsert(ctx, it)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver(nil)
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("items", func() {
		It("stores and retrieves an item", func() {
			seed(NewTestItem("a", 0.4, 1, 2))

			got, err := driver.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("a"))
			Expect(got.BiasScore).To(BeNumerically("~", 0.4, 1e-9))
			Expect(got.Embedding).To(Equal([]float32{1, 2}))
			Expect(got.Title).To(Equal("video a"))
			Expect(got.CreatedAt).NotTo(BeZero())
		})

		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(HaveOccurred())

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})

		It("counts and lists only embedded items", func() {
			seed(NewTestItem("a", 0, 1, 0), NewTestItem("bare", 0), NewTestItem("b", 0, 0, 1))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			items, err := driver.Embedded(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"a", "b"}))
		})

		It("keeps insertion order when an item is replaced", func() {
			seed(NewTestItem("a", 0, 1), NewTestItem("b", 0, 2))
			seed(NewTestItem("a", 0.9, 3))

			items, err := driver.Embedded(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"a", "b"}))
			Expect(items[0].BiasScore).To(BeNumerically("~", 0.9, 1e-9))
			Expect(items[0].Embedding).To(Equal([]float32{3}))
		})

		It("deletes items", func() {
			seed(NewTestItem("a", 0, 1))
			Expect(driver.Delete(ctx, "a")).To(Succeed())

			_, err := driver.Get(ctx, "a")
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
			Expect(errors.Is(driver.Delete(ctx, "a"), storage.ErrNotFound)).To(BeTrue())
		})

		It("rejects items without an id", func() {
			Expect(driver.Upsert(ctx, &storage.Item{})).NotTo(Succeed())
			Expect(driver.Upsert(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("visited tracking", func() {
		BeforeEach(func() {
			seed(NewTestItem("a", 0, 1), NewTestItem("b", 0, 2), NewTestItem("c", 0, 3))
		})

		It("is idempotent", func() {
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())

			visited, err := driver.HasVisited(ctx, "u1", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(visited).To(BeTrue())

			n, err := driver.UnvisitedCount(ctx, "u1", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("reports false for unknown users", func() {
			visited, err := driver.HasVisited(ctx, "nobody", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(visited).To(BeFalse())
		})

		It("ignores unknown item ids", func() {
			Expect(driver.MarkVisited(ctx, "u1", "ghost")).To(Succeed())

			visited, err := driver.HasVisited(ctx, "u1", "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(visited).To(BeFalse())
		})

		It("excludes visited items from ListUnvisited", func() {
			Expect(driver.MarkVisited(ctx, "u1", "b")).To(Succeed())

			items, err := driver.ListUnvisited(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"a", "c"}))

			items, err = driver.ListUnvisited(ctx, "u2")
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(3))
		})

		It("tolerates visited entries for deleted items", func() {
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())
			Expect(driver.MarkVisited(ctx, "u1", "b")).To(Succeed())
			Expect(driver.Delete(ctx, "a")).To(Succeed())

			total, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(2))

			n, err := driver.UnvisitedCount(ctx, "u1", total)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			items, err := driver.VisitedItems(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"b"}))
		})

		It("clamps the unvisited count at zero", func() {
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())
			Expect(driver.MarkVisited(ctx, "u1", "b")).To(Succeed())

			n, err := driver.UnvisitedCount(ctx, "u1", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("returns visited items in serve order", func() {
			Expect(driver.MarkVisited(ctx, "u1", "c")).To(Succeed())
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())

			items, err := driver.VisitedItems(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(items)).To(Equal([]string{"c", "a"}))
		})

		It("resets a single user", func() {
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())
			Expect(driver.MarkVisited(ctx, "u2", "a")).To(Succeed())
			Expect(driver.PutUser(ctx, &storage.User{ID: "u1", BiasScore: 0.5, PoleCount: 1})).To(Succeed())

			Expect(driver.Reset(ctx, "u1")).To(Succeed())

			visited, _ := driver.HasVisited(ctx, "u1", "a")
			Expect(visited).To(BeFalse())
			visited, _ = driver.HasVisited(ctx, "u2", "a")
			Expect(visited).To(BeTrue())

			u, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.PoleCount).To(Equal(1))
		})
	})

	Describe("users", func() {
		It("reads unknown users as neutral", func() {
			u, err := driver.GetUser(ctx, "new")
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(Equal(&storage.User{ID: "new"}))
		})

		It("overwrites user state", func() {
			Expect(driver.PutUser(ctx, &storage.User{ID: "u1", BiasScore: -0.2, PoleCount: 3})).To(Succeed())

			u, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.BiasScore).To(BeNumerically("~", -0.2, 1e-9))
			Expect(u.PoleCount).To(Equal(3))
		})
	})

	Describe("Commit", func() {
		BeforeEach(func() {
			seed(NewTestItem("a", 0.2, 1), NewTestItem("b", -0.4, 2))
		})

		It("writes the user and the visited mark together", func() {
			Expect(driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "a", NewBias: 0.2, NewPoleCount: 1, ExpectedPoleCount: 0,
			})).To(Succeed())

			u, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.BiasScore).To(BeNumerically("~", 0.2, 1e-9))
			Expect(u.PoleCount).To(Equal(1))

			visited, err := driver.HasVisited(ctx, "u1", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(visited).To(BeTrue())

			Expect(driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "b", NewBias: -0.1, NewPoleCount: 2, ExpectedPoleCount: 1,
			})).To(Succeed())

			u, err = driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.PoleCount).To(Equal(2))
		})

		It("rejects a stale pole count", func() {
			Expect(driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "a", NewBias: 0.2, NewPoleCount: 1, ExpectedPoleCount: 0,
			})).To(Succeed())

			err := driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "b", NewBias: -0.4, NewPoleCount: 1, ExpectedPoleCount: 0,
			})
			Expect(errors.Is(err, storage.ErrConflict)).To(BeTrue())

			visited, _ := driver.HasVisited(ctx, "u1", "b")
			Expect(visited).To(BeFalse())
		})

		It("rejects an already visited item without touching the user", func() {
			Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())

			err := driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "a", NewBias: 0.2, NewPoleCount: 1, ExpectedPoleCount: 0,
			})
			Expect(errors.Is(err, storage.ErrConflict)).To(BeTrue())

			u, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.PoleCount).To(BeZero())
		})

		It("rejects items removed from the catalog", func() {
			Expect(driver.Delete(ctx, "a")).To(Succeed())

			err := driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "a", NewBias: 0.2, NewPoleCount: 1, ExpectedPoleCount: 0,
			})
			Expect(errors.Is(err, storage.ErrConflict)).To(BeTrue())
		})
	})

	Describe("Commit with a fault between writes", func() {
		var errInjected = errors.New("injected fault")

		BeforeEach(func() {
			Expect(driver.Close()).To(Succeed())
			driver = nil
			driver = newDriver(func(storage.Commit) error { return errInjected })
			seed(NewTestItem("a", 0.2, 1))
			Expect(driver.PutUser(ctx, &storage.User{ID: "u1", BiasScore: -0.5, PoleCount: 2})).To(Succeed())
		})

		It("leaves no partial state", func() {
			err := driver.Commit(ctx, storage.Commit{
				UserID: "u1", ItemID: "a", NewBias: -0.3, NewPoleCount: 3, ExpectedPoleCount: 2,
			})
			Expect(errors.Is(err, errInjected)).To(BeTrue())

			u, err := driver.GetUser(ctx, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.BiasScore).To(BeNumerically("~", -0.5, 1e-9))
			Expect(u.PoleCount).To(Equal(2))

			visited, err := driver.HasVisited(ctx, "u1", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(visited).To(BeFalse())
		})

		It("leaves no user record for a first selection", func() {
			err := driver.Commit(ctx, storage.Commit{
				UserID: "u2", ItemID: "a", NewBias: 0.2, NewPoleCount: 1, ExpectedPoleCount: 0,
			})
			Expect(err).To(HaveOccurred())

			u, err := driver.GetUser(ctx, "u2")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.PoleCount).To(BeZero())
		})
	})
}

// ItBehavesLikeASampler registers behavior for drivers implementing
// storage.Sampler.
func ItBehavesLikeASampler(newDriver DriverFactory) {
	var (
		ctx     context.Context
		driver  storage.Driver
		sampler storage.Sampler
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver(nil)

		var ok bool
		sampler, ok = driver.(storage.Sampler)
		Expect(ok).To(BeTrue())

		for _, id := range []string{"a", "b", "c", "d", "e"} {
			Expect(driver.Upsert(ctx, NewTestItem(id, 0, 1))).To(Succeed())
		}
		Expect(driver.Upsert(ctx, NewTestItem("bare", 0))).To(Succeed())
		Expect(driver.MarkVisited(ctx, "u1", "a")).To(Succeed())
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	It("draws distinct unvisited embedded items", func() {
		items, err := sampler.SampleUnvisited(ctx, "u1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(3))

		got := ids(items)
		Expect(got).NotTo(ContainElement("a"))
		Expect(got).NotTo(ContainElement("bare"))

		seen := map[string]bool{}
		for _, id := range got {
			Expect(seen[id]).To(BeFalse())
			seen[id] = true
		}
	})

	It("returns every unvisited item when n exceeds the pool", func() {
		items, err := sampler.SampleUnvisited(ctx, "u1", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(items)).To(ConsistOf("b", "c", "d", "e"))
	})

	It("returns nothing for a non-positive n", func() {
		items, err := sampler.SampleUnvisited(ctx, "u1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(BeEmpty())
	})

	It("draws each unvisited item about equally often", func() {
		const draws = 1000
		counts := map[string]int{}
		for range draws {
			items, err := sampler.SampleUnvisited(ctx, "u1", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			counts[items[0].ID]++
		}

		// Four eligible items: 250 expected each, standard deviation near 14.
		Expect(counts).To(HaveLen(4))
		for id, n := range counts {
			Expect(n).To(BeNumerically("~", draws/4, 100), "item %s drawn %d times", id, n)
		}
	})
}

func ids(items []*storage.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
