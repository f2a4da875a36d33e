package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/polar/pkg/storage"
)

// maxLineSize bounds one JSON line; embeddings of a few thousand floats fit.
const maxLineSize = 4 << 20

// Record is the JSON-lines shape of an ingest job. A missing bias_score is
// stored as 0.
type Record struct {
	ItemID     string    `json:"item_id"`
	BiasScore  *float64  `json:"bias_score,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Title      string    `json:"title,omitempty"`
	UploaderID string    `json:"uploader_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
}

// Job converts the record into a Job.
func (r Record) Job() Job {
	item := storage.Item{
		ID:         r.ItemID,
		Embedding:  r.Embedding,
		Title:      r.Title,
		UploaderID: r.UploaderID,
		URL:        r.URL,
	}
	if r.BiasScore != nil {
		item.BiasScore = *r.BiasScore
	}
	return Job{Item: item, Transcript: r.Transcript}
}

// ReadJobs decodes one Record per line and calls fn with its Job. Blank
// lines are skipped. Decoding stops at the first malformed line.
func ReadJobs(r io.Reader, fn func(Job) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ItemID == "" {
			return fmt.Errorf("line %d: %w: item_id is required", line, ErrInvalidJob)
		}
		if err := fn(rec.Job()); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}
