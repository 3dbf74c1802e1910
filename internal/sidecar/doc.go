// Package sidecar implements the per-image annotation file format.
//
// Each image gets one JSON sidecar named <basename>.json alongside it,
// carrying the image's content hash, its annotation (a free-text
// description and/or an ordered label list), and optionally the full file
// bytes as base64 for content-addressable recovery.
//
// Two schema generations are supported. The current format stores the
// annotation in top-level "describe" and "label" fields. The legacy format
// stored everything in a flat "annotation" string, which may itself be a
// JSON object one level deep; the codec unwraps that exactly once and
// falls back to plain text when parsing fails. Decoding never propagates
// an error for malformed content, it degrades instead.
//
// The codec also repairs consistency: when an image's live content hash
// disagrees with the hash recorded in its sidecar (a file replaced in
// place), the sidecar is rewritten with the corrected hash and a refreshed
// base64 payload, leaving all other fields untouched.
package sidecar
