package api

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/storage/inmemory"
)

var _ = Describe("NewServer", func() {
	It("requires a selector", func() {
		_, err := NewServer(Config{}, inmemory.NewDriver(), logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("defaults the request timeout", func() {
		env := newTestEnv(nil)
		Expect(env.server.config.RequestTimeout).To(Equal(DefaultRequestTimeout))
	})
})

var _ = Describe("handlePing", func() {
	It("returns pong", func() {
		env := newTestEnv(nil)
		resp, raw := env.do(http.MethodGet, "/ping", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decode[string](raw)).To(Equal("pong"))
	})
})

var _ = Describe("handleFeedNext", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(nil)
	})

	It("requires a user", func() {
		resp, raw := env.do(http.MethodGet, "/v1/feed/next", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindInvalidArgument))
	})

	It("rejects an invalid user id", func() {
		resp, raw := env.do(http.MethodGet, "/v1/feed/next?user=%01", "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindInvalidArgument))
	})

	It("serves the item closest to neutral first", func() {
		resp, raw := env.do(http.MethodGet, "/v1/feed/next?user=u1", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decode[FeedResponse](raw)
		Expect(body.ItemID).To(Equal("c"))
		Expect(body.BiasScore).To(BeNumerically("~", 0.1, 1e-9))
		Expect(body.UserBias).To(BeNumerically("~", 0.1, 1e-9))
		Expect(body.PoleCount).To(Equal(1))
		Expect(body.PoolSize).To(Equal(3))
		Expect(string(raw)).NotTo(ContainSubstring("embedding"))
		Expect(env.publisher.Events()).To(HaveLen(1))
	})

	It("never repeats an item and reports exhaustion", func() {
		seen := map[string]bool{}
		for range 3 {
			resp, raw := env.do(http.MethodGet, "/v1/feed/next?user=u1", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			id := decode[FeedResponse](raw).ItemID
			Expect(seen).NotTo(HaveKey(id))
			seen[id] = true
		}

		resp, raw := env.do(http.MethodGet, "/v1/feed/next?user=u1", "")
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		Expect(decode[ErrorResponse](raw).Error).To(Equal(KindNoUnvisited))
	})

	It("serves again after a reset", func() {
		for range 3 {
			resp, _ := env.do(http.MethodGet, "/v1/feed/next?user=u1", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		}

		resp, _ := env.do(http.MethodPost, "/v1/feed/reset?user=u1", "")
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

		resp, _ = env.do(http.MethodGet, "/v1/feed/next?user=u1", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})
})

var _ = Describe("user routes", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(nil)
	})

	It("reports stats for an unknown user", func() {
		resp, raw := env.do(http.MethodGet, "/v1/users/nobody", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decode[UserStatsResponse](raw)
		Expect(body.UserID).To(Equal("nobody"))
		Expect(body.PoleCount).To(Equal(0))
		Expect(body.Visited).To(Equal(0))
		Expect(body.Unvisited).To(Equal(3))
	})

	It("decodes percent-escaped user ids", func() {
		env.do(http.MethodGet, "/v1/feed/next?user=jane%20doe", "")

		resp, raw := env.do(http.MethodGet, "/v1/users/jane%20doe", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		body := decode[UserStatsResponse](raw)
		Expect(body.UserID).To(Equal("jane doe"))
		Expect(body.Visited).To(Equal(1))

		resp, _ = env.do(http.MethodPost, "/v1/users/jane%20doe/recompute", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("reflects served items", func() {
		env.do(http.MethodGet, "/v1/feed/next?user=u1", "")

		_, raw := env.do(http.MethodGet, "/v1/users/u1", "")
		body := decode[UserStatsResponse](raw)
		Expect(body.PoleCount).To(Equal(1))
		Expect(body.Visited).To(Equal(1))
		Expect(body.Unvisited).To(Equal(2))
	})

	It("recomputes the bias from served items", func() {
		env.do(http.MethodGet, "/v1/feed/next?user=u1", "")
		env.do(http.MethodGet, "/v1/feed/next?user=u1", "")

		before, err := env.driver.GetUser(context.Background(), "u1")
		Expect(err).NotTo(HaveOccurred())

		resp, raw := env.do(http.MethodPost, "/v1/users/u1/recompute", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body := decode[map[string]any](raw)
		Expect(body["pole_count"]).To(BeNumerically("==", 2))
		Expect(body["bias_score"]).To(BeNumerically("~", before.BiasScore, 1e-9))
	})
})
