package testutils

import (
	"github.com/papercomputeco/polar/pkg/storage"
)

// NewTestItem creates an embedded catalog item for testing. Passing no
// embedding values yields an item that is not embedded.
func NewTestItem(id string, bias float64, embedding ...float32) *storage.Item {
	return &storage.Item{
		ID:         id,
		BiasScore:  bias,
		Embedding:  embedding,
		Title:      "video " + id,
		UploaderID: "uploader-1",
		URL:        "https://videos.example.com/" + id,
	}
}
