// Package cliui holds the lipgloss styles and spinner used by polar's
// client commands.
package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	HeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	RankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerInterval = 80 * time.Millisecond

// Step animates a spinner next to msg while fn runs, then rewrites the line
// with the outcome mark and elapsed time. It returns fn's error.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	spinning := make(chan struct{})
	go func() {
		defer close(spinning)
		spin(w, msg, done)
	}()

	start := time.Now()
	err := fn()
	close(done)
	<-spinning

	fmt.Fprintf(w, "\r  %s %s %s\n", Mark(err), msg,
		StepStyle.Render("("+FormatDuration(time.Since(start))+")"))
	return err
}

func spin(w io.Writer, msg string, done <-chan struct{}) {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), msg)
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// KeyValue renders one aligned "key  value" line, dimming empty values.
func KeyValue(key, value string) string {
	if value == "" {
		return fmt.Sprintf("  %s  %s", KeyStyle.Render(key), DimStyle.Render("<not set>"))
	}
	return fmt.Sprintf("  %s  %s", KeyStyle.Render(key), ValueStyle.Render(value))
}
