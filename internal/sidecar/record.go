package sidecar

import (
	"encoding/json"
	"fmt"
	"os"

	"labelflow/internal/fsutil"
	"labelflow/internal/metrics"
)

// Record is the on-disk sidecar JSON for one image.
//
// Base64Data is a pointer so the field serializes as an explicit null when
// embedding is disabled or the file exceeds the size ceiling. Describe and
// Label are the current-format fields; Annotation is the legacy flat-string
// representation kept for backward compatibility.
type Record struct {
	Filename   string   `json:"filename"`
	Hash       string   `json:"hash"`
	FileSize   int64    `json:"file_size,omitempty"`
	Base64Data *string  `json:"base64_data"`
	Describe   string   `json:"describe,omitempty"`
	Label      []string `json:"label,omitempty"`
	Annotation string   `json:"annotation,omitempty"`

	// LegacyLabels is the V0.0.2 root-level "labels" key. It is read for
	// label extraction in compatibility mode and never written.
	LegacyLabels []string `json:"labels,omitempty"`
}

// ReadRecord parses the sidecar file at path.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.SidecarReadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read sidecar %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		metrics.SidecarReadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to parse sidecar %s: %w", path, err)
	}

	metrics.SidecarReadsTotal.WithLabelValues("success").Inc()
	return &rec, nil
}

// WriteRecord writes the record to path as pretty-printed UTF-8 JSON.
// The write is a whole-file atomic replacement; a sidecar is never left
// partially written.
func WriteRecord(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		metrics.SidecarWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal sidecar %s: %w", path, err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		metrics.SidecarWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write sidecar %s: %w", path, err)
	}

	metrics.SidecarWritesTotal.WithLabelValues("success").Inc()
	return nil
}
