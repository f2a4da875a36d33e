package logger

import (
	"io"
	"log/slog"
)

// Option adjusts how New builds a logger.
type Option func(*config)

// WithDebug lowers the threshold to debug. False restores info.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects colorized charmbracelet/log output for terminals.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects one JSON object per record. It takes precedence over
// WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters copies output to every w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource annotates records with file and line.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
