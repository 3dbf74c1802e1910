// Package memory derives memory-aware sizing decisions for the catalog.
//
// Two policies live here:
//   - The eager-load batch size: how many images the catalog decodes up
//     front, bounded so the estimated resident pixel data stays under a
//     budget (GOMEMLIMIT when set, 1 GiB otherwise).
//   - The base64 embed ceiling: the largest file whose bytes are embedded
//     into its sidecar, tiered on total system memory.
//
// Both are pure computations over a Config; nothing here monitors live
// allocation.
package memory
