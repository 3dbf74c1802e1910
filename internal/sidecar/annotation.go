package sidecar

import (
	"encoding/json"
	"strings"

	"labelflow/internal/imagetypes"
)

// Annotation is the structured annotation payload for one image: an
// optional free-text description and an ordered, deduplicated label list.
type Annotation struct {
	Describe string
	Labels   []string
}

// IsEmpty reports whether the annotation carries no content: a blank
// description and no labels.
func (a Annotation) IsEmpty() bool {
	return strings.TrimSpace(a.Describe) == "" && len(a.Labels) == 0
}

// Mode classifies the annotation content.
func (a Annotation) Mode() imagetypes.Mode {
	hasDescribe := strings.TrimSpace(a.Describe) != ""
	hasLabels := len(a.Labels) > 0

	switch {
	case hasDescribe && hasLabels:
		return imagetypes.ModeMixed
	case hasLabels:
		return imagetypes.ModeLabel
	case hasDescribe:
		return imagetypes.ModeDescription
	default:
		return imagetypes.ModeEmpty
	}
}

// Payload is the tagged variant accepted at the saveAnnotation boundary.
// Callers hand the core either raw text or an already-structured
// annotation; the codec owns all legacy-format interpretation.
type Payload interface {
	annotation() Annotation
}

// PlainText is a bare free-text annotation. Text that looks like a JSON
// object is parsed once; anything else becomes the description verbatim.
type PlainText string

func (p PlainText) annotation() Annotation {
	raw := strings.TrimSpace(string(p))
	if raw == "" {
		return Annotation{}
	}

	if strings.HasPrefix(raw, "{") {
		var nested struct {
			Describe string   `json:"describe"`
			Label    []string `json:"label"`
		}
		if err := json.Unmarshal([]byte(raw), &nested); err == nil {
			return Annotation{
				Describe: nested.Describe,
				Labels:   dedupLabels(nested.Label),
			}
		}
	}

	return Annotation{Describe: string(p)}
}

// Structured is an annotation already split into description and labels.
type Structured Annotation

func (s Structured) annotation() Annotation {
	return Annotation{
		Describe: s.Describe,
		Labels:   dedupLabels(s.Labels),
	}
}

// Resolve converts a payload into its canonical Annotation form.
func Resolve(p Payload) Annotation {
	if p == nil {
		return Annotation{}
	}
	return p.annotation()
}

// dedupLabels removes duplicate labels while preserving first-seen order.
func dedupLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(labels))
	result := make([]string, 0, len(labels))
	for _, label := range labels {
		if seen[label] {
			continue
		}
		seen[label] = true
		result = append(result, label)
	}
	return result
}
