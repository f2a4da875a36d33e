package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/feed"
	"github.com/papercomputeco/polar/pkg/logger"
	"github.com/papercomputeco/polar/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/polar/pkg/utils/test"
	"github.com/papercomputeco/polar/pkg/vector"
	"github.com/papercomputeco/polar/pkg/vector/flat"
)

// testEnv is a server over an in-memory catalog of three items.
type testEnv struct {
	server    *Server
	driver    *inmemory.Driver
	index     *vector.Manager
	embedder  *testutils.MockEmbedder
	publisher *testutils.MockPublisher
}

func newTestEnv(configure func(*Config)) *testEnv {
	ctx := context.Background()
	driver := inmemory.NewDriver()
	for _, it := range []struct {
		id   string
		bias float64
		emb  []float32
	}{
		{"a", 0.5, []float32{1, 0, 0}},
		{"b", -0.5, []float32{0, 1, 0}},
		{"c", 0.1, []float32{0.9, 0.1, 0}},
	} {
		Expect(driver.Upsert(ctx, testutils.NewTestItem(it.id, it.bias, it.emb...))).To(Succeed())
	}

	publisher := testutils.NewMockPublisher()
	selector, err := feed.NewSelector(feed.Config{
		Items:     driver,
		Users:     driver,
		Visited:   driver,
		Publisher: publisher,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	index, err := vector.NewManager(vector.ManagerConfig{
		Items:   driver,
		Factory: flat.NewFactory(flat.Config{Metric: vector.MetricL2}),
		Logger:  logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	embedder := testutils.NewMockEmbedder()
	config := Config{
		ListenAddr: ":0",
		Selector:   selector,
		Index:      index,
		Embedder:   embedder,
	}
	if configure != nil {
		configure(&config)
	}

	server, err := NewServer(config, driver, logger.Nop())
	Expect(err).NotTo(HaveOccurred())

	return &testEnv{
		server:    server,
		driver:    driver,
		index:     index,
		embedder:  embedder,
		publisher: publisher,
	}
}

func (e *testEnv) do(method, target, body string) (*http.Response, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, raw
}

func decode[T any](raw []byte) T {
	var v T
	Expect(json.Unmarshal(raw, &v)).To(Succeed())
	return v
}
