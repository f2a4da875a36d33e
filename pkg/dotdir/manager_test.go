package dotdir_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var root, work, home string

	BeforeEach(func() {
		var err error
		// Resolve symlinks so results compare equal to filepath.Abs output.
		root, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		work = filepath.Join(root, "work")
		home = filepath.Join(root, "home")
	})

	manager := func() *dotdir.Manager {
		return dotdir.NewManager(dotdir.WithWorkdir(work), dotdir.WithHome(home))
	}

	Describe("Target", func() {
		It("creates and returns an override directory", func() {
			override := filepath.Join(root, "custom")

			Expect(manager().Target(override)).To(Equal(override))
			Expect(override).To(BeADirectory())
		})

		It("prefers the override over a local .polar", func() {
			Expect(manager().Target(filepath.Join(work, ".polar"))).To(BeADirectory())

			override := filepath.Join(root, "custom")
			Expect(manager().Target(override)).To(Equal(override))
		})

		It("uses an existing local .polar", func() {
			local := filepath.Join(work, ".polar")
			_, err := manager().Target(local)
			Expect(err).NotTo(HaveOccurred())

			Expect(manager().Target("")).To(Equal(local))
			Expect(filepath.Join(home, ".polar")).NotTo(BeAnExistingFile())
		})

		It("creates ~/.polar when there is no local directory", func() {
			want := filepath.Join(home, ".polar")

			Expect(manager().Target("")).To(Equal(want))
			Expect(want).To(BeADirectory())
		})
	})

	Describe("SQLitePath", func() {
		It("prefers the override", func() {
			Expect(dotdir.SQLitePath("/data/custom.db", root)).To(Equal("/data/custom.db"))
		})

		It("defaults to polar.sqlite inside the directory", func() {
			Expect(dotdir.SQLitePath("", root)).To(Equal(filepath.Join(root, "polar.sqlite")))
		})
	})
})
