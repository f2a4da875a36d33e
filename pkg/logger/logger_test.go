package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/polar/pkg/logger"
)

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var timeZero time.Time

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records with attributes", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf)).Info("item served", "item_id", "v1")

			Expect(buf.String()).To(ContainSubstring("item served"))
			Expect(buf.String()).To(ContainSubstring("item_id=v1"))
		})

		It("filters debug records unless debug is on", func() {
			var quiet, loud bytes.Buffer
			logger.New(logger.WithWriter(&quiet)).Debug("candidate chosen")
			logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("candidate chosen")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("candidate chosen"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true)).Info("index rebuilt", "size", 42)

			parsed := decodeLine(&buf)
			Expect(parsed["msg"]).To(Equal("index rebuilt"))
			Expect(parsed["size"]).To(BeNumerically("==", 42))
		})

		It("includes the source location when asked", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true)).Info("here")

			Expect(decodeLine(&buf)).To(HaveKey(slog.SourceKey))
		})

		It("writes pretty records through charmbracelet/log", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Info("pretty output", "user_id", "u1")

			Expect(buf.String()).To(ContainSubstring("pretty output"))
			Expect(buf.String()).To(ContainSubstring("u1"))
		})

		It("copies output to every writer", func() {
			var a, b bytes.Buffer
			logger.New(logger.WithWriters(&a, &b)).Info("fanned")

			Expect(a.String()).To(ContainSubstring("fanned"))
			Expect(b.String()).To(ContainSubstring("fanned"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() { l.With("k", "v").WithGroup("g").Error("ignored") }).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("routes each record by the child's level", func() {
			var console, file bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&console)),
				logger.New(logger.WithWriter(&file), logger.WithJSON(true), logger.WithDebug(true)),
			)

			multi.Debug("pool drawn", "pool_size", 3)

			Expect(console.String()).To(BeEmpty())
			Expect(decodeLine(&file)["pool_size"]).To(BeNumerically("==", 3))
		})

		It("keeps attributes and groups on derived loggers", func() {
			var buf bytes.Buffer
			multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))

			multi.With("component", "feed").WithGroup("request").Info("served", "user_id", "u1")

			parsed := decodeLine(&buf)
			Expect(parsed["component"]).To(Equal("feed"))
			Expect(parsed["request"]).To(HaveKeyWithValue("user_id", "u1"))
		})

		It("delivers to healthy handlers when one fails", func() {
			var buf bytes.Buffer
			broken := logger.New(logger.WithWriter(failingWriter{}))
			healthy := logger.New(logger.WithWriter(&buf))

			err := logger.Multi(broken, healthy).Handler().Handle(context.Background(),
				slog.NewRecord(timeZero, slog.LevelInfo, "still delivered", 0))

			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(buf.String()).To(ContainSubstring("still delivered"))
		})

		It("skips nil loggers", func() {
			Expect(func() { logger.Multi(nil, logger.Nop()).Info("ok") }).NotTo(Panic())
		})
	})
})
