// Package labels maintains the aggregate label index: the deduplicated,
// insertion-ordered union of every label seen in any sidecar under the
// working directory plus labels added by hand.
//
// The set is cached in labels_cache.json so restarts do not pay a full
// sidecar re-scan, and re-derived additively on load. In compatibility
// mode the V0.0.2 global labels.json (content hash to annotation string)
// is also read, both for label extraction and for hash-keyed annotation
// backfill.
package labels
