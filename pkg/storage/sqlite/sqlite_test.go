package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/polar/pkg/utils/test"
)

func newMemoryDriver(hook storage.CommitHook) storage.Driver {
	d, err := sqlite.NewDriver(context.Background(), ":memory:", sqlite.WithCommitHook(hook))
	Expect(err).NotTo(HaveOccurred())
	return d
}

var _ = Describe("Driver", func() {
	testutils.ItBehavesLikeAStorageDriver(newMemoryDriver)

	Describe("SampleUnvisited", func() {
		testutils.ItBehavesLikeASampler(newMemoryDriver)
	})

	Describe("NewDriver", func() {
		It("persists state across reopen", func() {
			ctx := context.Background()
			path := filepath.Join(GinkgoT().TempDir(), "polar.sqlite")

			d, err := sqlite.NewDriver(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Upsert(ctx, testutils.NewTestItem("a", 0.3, 1, 2))).To(Succeed())
			Expect(d.MarkVisited(ctx, "u1", "a")).To(Succeed())
			Expect(d.Close()).To(Succeed())

			d, err = sqlite.NewDriver(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			visited, err := d.HasVisited(ctx, "u1", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(visited).To(BeTrue())

			_, err = os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns an error for an unwritable path", func() {
			_, err := sqlite.NewDriver(context.Background(), "/nonexistent/dir/polar.sqlite")
			Expect(err).To(HaveOccurred())
		})
	})
})
