package api

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("handleSimilar", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(nil)
		_, err := env.index.Rebuild(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns neighbours nearest first without the item itself", func() {
		resp, raw := env.do(http.MethodGet, "/v1/similar/a?k=2", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decode[SearchResponse](raw)
		Expect(body.ItemID).To(Equal("a"))
		Expect(body.Count).To(Equal(2))
		Expect(body.Results[0].ID).To(Equal("c"))
		Expect(body.Results[1].ID).To(Equal("b"))
		Expect(body.Results[0].Distance).To(BeNumerically("~", 0.02, 1e-6))
	})

	It("defaults k", func() {
		_, raw := env.do(http.MethodGet, "/v1/similar/a", "")
		Expect(decode[SearchResponse](raw).Count).To(Equal(2))
	})

	It("rejects a non-positive k", func() {
		resp, raw := env.do(http.MethodGet, "/v1/similar/a?k=0", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindInvalidArgument))

		resp, _ = env.do(http.MethodGet, "/v1/similar/a?k=abc", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 for an unknown item", func() {
		resp, raw := env.do(http.MethodGet, "/v1/similar/missing", "")
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindNotFound))
	})

	It("returns 503 when no index is configured", func() {
		env = newTestEnv(func(c *Config) { c.Index = nil })
		resp, _ := env.do(http.MethodGet, "/v1/similar/a", "")
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})
})

var _ = Describe("handleSearchEndpoint", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(nil)
		_, err := env.index.Rebuild(context.Background())
		Expect(err).NotTo(HaveOccurred())
		env.embedder.Embeddings["sports"] = []float32{0, 1, 0}
	})

	It("ranks items against the embedded query", func() {
		resp, raw := env.do(http.MethodGet, "/v1/search?query=sports&top_k=1", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decode[SearchResponse](raw)
		Expect(body.Query).To(Equal("sports"))
		Expect(body.Count).To(Equal(1))
		Expect(body.Results[0].ID).To(Equal("b"))
		Expect(body.Results[0].Distance).To(BeNumerically("~", 0, 1e-9))
	})

	It("requires a query", func() {
		resp, _ := env.do(http.MethodGet, "/v1/search", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("rejects an invalid top_k", func() {
		resp, _ := env.do(http.MethodGet, "/v1/search?query=sports&top_k=-1", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("reports a dimension mismatch", func() {
		env.embedder.Embeddings["short"] = []float32{1, 0}
		resp, raw := env.do(http.MethodGet, "/v1/search?query=short", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindDimensionMismatch))
	})

	It("maps an embedding failure to unavailable", func() {
		env.embedder.FailOn = "broken"
		resp, raw := env.do(http.MethodGet, "/v1/search?query=broken", "")
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindUnavailable))
		Expect(env.embedder.Calls()).To(Equal(1))
	})

	It("returns 503 without an embedder", func() {
		env = newTestEnv(func(c *Config) { c.Embedder = nil })
		resp, _ := env.do(http.MethodGet, "/v1/search?query=sports", "")
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
	})
})
