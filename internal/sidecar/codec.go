package sidecar

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"labelflow/internal/fsutil"
	"labelflow/internal/logging"
	"labelflow/internal/metrics"
)

// Codec reads and writes sidecar records, applying the legacy-format
// fallback chain on decode and the base64 size gate on encode.
type Codec struct {
	// EmbedBase64 controls whether file contents are embedded into
	// sidecars for content-addressable recovery.
	EmbedBase64 bool

	// MaxEmbedBytes is the largest file eligible for embedding. Files
	// over the ceiling get an explicit null instead of failing the save.
	MaxEmbedBytes int64

	// Compatibility enables parsing and writing of the legacy flat
	// annotation/labels schema alongside the current one.
	Compatibility bool
}

// Encode builds the sidecar record for an image.
func (c *Codec) Encode(filename, hash string, fileSize int64, base64Data *string, ann Annotation) *Record {
	rec := &Record{
		Filename:   filename,
		Hash:       hash,
		FileSize:   fileSize,
		Base64Data: base64Data,
		Describe:   ann.Describe,
		Label:      dedupLabels(ann.Labels),
	}

	// Legacy mirror so V0.0.2 readers still see the description.
	if c.Compatibility && strings.TrimSpace(ann.Describe) != "" {
		rec.Annotation = ann.Describe
	}

	return rec
}

// legacyEnvelope is the one level of nested JSON the legacy annotation
// field may contain.
type legacyEnvelope struct {
	Describe   string   `json:"describe"`
	Annotation string   `json:"annotation"`
	Label      []string `json:"label"`
	Labels     []string `json:"labels"`
}

// DecodeAnnotation reconstructs the annotation from a record.
//
// Precedence: current-format fields win when present; otherwise the legacy
// annotation field is consulted, unwrapping one level of nested JSON; if
// that text is not JSON it is the description verbatim. Decoding never
// fails upward, a malformed record simply yields a degraded annotation.
func (c *Codec) DecodeAnnotation(rec *Record) Annotation {
	if rec == nil {
		return Annotation{}
	}

	if strings.TrimSpace(rec.Describe) != "" || len(rec.Label) > 0 {
		return Annotation{
			Describe: rec.Describe,
			Labels:   dedupLabels(rec.Label),
		}
	}

	legacy := strings.TrimSpace(rec.Annotation)
	if legacy == "" {
		return Annotation{}
	}

	if strings.HasPrefix(legacy, "{") {
		var nested legacyEnvelope
		if err := json.Unmarshal([]byte(legacy), &nested); err == nil {
			describe := nested.Describe
			if describe == "" {
				describe = nested.Annotation
			}

			labels := nested.Label
			// The V0.0.2 "labels" key is only honored in compatibility
			// mode; outside it the key is ignored rather than guessed at.
			if len(labels) == 0 && c.Compatibility {
				labels = nested.Labels
			}

			return Annotation{
				Describe: describe,
				Labels:   dedupLabels(labels),
			}
		}
		logging.Debug("legacy annotation for %s is not valid JSON, treating as plain text", rec.Filename)
	}

	return Annotation{Describe: rec.Annotation}
}

// EmbedFile returns the base64 encoding of the file at path, or nil when
// embedding is disabled, the file exceeds the size ceiling, or the file
// cannot be read. A nil result is a degraded save, not an error.
func (c *Codec) EmbedFile(path string, fileSize int64) *string {
	if !c.EmbedBase64 {
		return nil
	}

	if c.MaxEmbedBytes > 0 && fileSize > c.MaxEmbedBytes {
		logging.Debug("file too large for base64 embedding: %s (%d bytes)", path, fileSize)
		metrics.SidecarBase64Skipped.Inc()
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("failed to read %s for base64 embedding: %v", path, err)
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	// Verify the encoding decodes back to the original bytes before it
	// becomes the recovery copy of the file.
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !bytes.Equal(decoded, data) {
		logging.Error("base64 round-trip verification failed for %s", path)
		return nil
	}

	return &encoded
}

// Repair reconciles the sidecar at sidecarPath against the live content
// hash of the image at imagePath. When the stored hash disagrees, the
// hash, file size, and (if eligible) base64 payload are rewritten in
// place; all other fields are preserved. The rewrite goes through the
// generic JSON representation so fields this version does not know about
// survive. Returns true if the sidecar was rewritten. A missing sidecar
// is not an error.
func (c *Codec) Repair(sidecarPath, imagePath, liveHash string, fileSize int64) (bool, error) {
	if liveHash == "" {
		return false, nil
	}

	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read sidecar %s: %w", sidecarPath, err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return false, fmt.Errorf("failed to parse sidecar %s: %w", sidecarPath, err)
	}

	stored, _ := record["hash"].(string)
	if stored == "" || stored == liveHash {
		return false, nil
	}

	filename, _ := record["filename"].(string)
	logging.Info("sidecar hash mismatch for %s: stored %s, live %s", filename, stored, liveHash)

	record["hash"] = liveHash
	record["file_size"] = fileSize
	if fresh := c.EmbedFile(imagePath, fileSize); fresh != nil {
		record["base64_data"] = *fresh
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal sidecar %s: %w", sidecarPath, err)
	}
	out = append(out, '\n')

	if err := fsutil.WriteFileAtomic(sidecarPath, out, 0o644); err != nil {
		return false, fmt.Errorf("failed to repair sidecar %s: %w", sidecarPath, err)
	}

	metrics.SidecarRepairsTotal.Inc()
	return true, nil
}
