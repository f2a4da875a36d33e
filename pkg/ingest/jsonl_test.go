package ingest_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/ingest"
)

var _ = Describe("ReadJobs", func() {
	collect := func(input string) ([]ingest.Job, error) {
		var jobs []ingest.Job
		err := ingest.ReadJobs(strings.NewReader(input), func(j ingest.Job) error {
			jobs = append(jobs, j)
			return nil
		})
		return jobs, err
	}

	It("decodes one job per line and skips blank lines", func() {
		jobs, err := collect(`{"item_id": "v1", "bias_score": -0.5, "embedding": [1, 2], "title": "One"}

{"item_id": "v2", "transcript": "hello world"}
`)
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(2))

		Expect(jobs[0].Item.ID).To(Equal("v1"))
		Expect(jobs[0].Item.BiasScore).To(Equal(-0.5))
		Expect(jobs[0].Item.Embedding).To(Equal([]float32{1, 2}))
		Expect(jobs[0].Item.Title).To(Equal("One"))

		Expect(jobs[1].Item.BiasScore).To(BeZero())
		Expect(jobs[1].Transcript).To(Equal("hello world"))
	})

	It("reports the line of malformed input", func() {
		_, err := collect("{\"item_id\": \"v1\"}\n{not json}\n")
		Expect(err).To(MatchError(ContainSubstring("line 2")))
	})

	It("requires an item id", func() {
		_, err := collect(`{"title": "anonymous"}`)
		Expect(err).To(MatchError(ingest.ErrInvalidJob))
	})

	It("stops at the first callback error", func() {
		calls := 0
		err := ingest.ReadJobs(strings.NewReader("{\"item_id\":\"a\"}\n{\"item_id\":\"b\"}\n"), func(ingest.Job) error {
			calls++
			return errors.New("stop")
		})
		Expect(err).To(MatchError(ContainSubstring("stop")))
		Expect(calls).To(Equal(1))
	})
})
