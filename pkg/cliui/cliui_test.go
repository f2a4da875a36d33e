package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/cliui"
)

var _ = Describe("cliui", func() {
	Describe("FormatDuration", func() {
		It("uses milliseconds below a second", func() {
			Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		})

		It("uses seconds otherwise", func() {
			Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
		})
	})

	Describe("Step", func() {
		It("returns the function's error and prints the message", func() {
			var buf bytes.Buffer
			boom := errors.New("boom")

			err := cliui.Step(&buf, "rebuilding index", func() error { return boom })
			Expect(err).To(MatchError(boom))
			Expect(buf.String()).To(ContainSubstring("rebuilding index"))
			Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		})

		It("marks success", func() {
			var buf bytes.Buffer
			Expect(cliui.Step(&buf, "ok", func() error { return nil })).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		})
	})

	Describe("KeyValue", func() {
		It("marks empty values as not set", func() {
			Expect(cliui.KeyValue("api.listen", "")).To(ContainSubstring("<not set>"))
		})
	})
})
