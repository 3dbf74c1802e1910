// Package hashing computes stable content identities for image files.
//
// Files are identified by the SHA-256 hash of their bytes, streamed in
// 8 KiB chunks so memory use is bounded regardless of file size. The hash
// is a pure function of file content: it is independent of filename,
// location, and modification time, which is what lets annotations survive
// renames and file moves.
package hashing
