// Package metrics defines Prometheus metrics for the annotation core.
//
// All metrics are registered with the default registry via promauto and
// use the labelflow_ namespace. Metric groups cover:
//   - Directory scanning and orphan recovery
//   - Content hashing and the background hash worker
//   - Sidecar reads, writes, and hash-consistency repairs
//   - Catalog state (entry counts, resident images, batch size)
//   - Label index size and cache persistence
//   - Batch renaming
//
// The metrics endpoint itself is served by the CLI shell when enabled;
// library code only records values.
package metrics
