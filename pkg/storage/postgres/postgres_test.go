package postgres_test

import (
	"context"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/storage"
	"github.com/papercomputeco/polar/pkg/storage/postgres"
	testutils "github.com/papercomputeco/polar/pkg/utils/test"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("POLAR_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("POLAR_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

// newCleanDriver connects and truncates every table for isolation.
func newCleanDriver(hook storage.CommitHook) storage.Driver {
	ctx := context.Background()
	d, err := postgres.NewDriver(ctx, connStr(), postgres.WithCommitHook(hook))
	Expect(err).NotTo(HaveOccurred())

	_, err = d.DB.ExecContext(ctx, `TRUNCATE items, users, visited RESTART IDENTITY`)
	Expect(err).NotTo(HaveOccurred())
	return d
}

var _ = Describe("Driver", func() {
	testutils.ItBehavesLikeAStorageDriver(newCleanDriver)

	Describe("SampleUnvisited", func() {
		testutils.ItBehavesLikeASampler(newCleanDriver)
	})

	Describe("NewDriver", func() {
		It("returns an error for invalid connection string", func() {
			connStr()
			_, err := postgres.NewDriver(context.Background(), "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
			Expect(err).To(HaveOccurred())
			fmt.Fprintf(GinkgoWriter, "expected error: %v\n", err)
		})
	})
})
