// Package catalog holds the in-memory state of an annotation session: the
// ordered sequence of discovered images, the navigation pointer, and the
// background hash worker.
//
// Entries are sorted case-insensitively by filename, which is the
// navigation order and is deterministic across rescans of the same file
// set. Pixel data loads lazily: a memory-bounded first batch is decoded
// eagerly on scan, navigation loads on demand, and entries far from the
// pointer may be evicted.
//
// One background worker per catalog computes content hashes in catalog
// order, repairs sidecars whose stored hash went stale, and backfills
// annotations by hash so they survive file renames. The foreground owns
// annotation saves; the worker owns hashes. Saving an annotation before
// the entry's hash has resolved is deferred, never an error.
package catalog
