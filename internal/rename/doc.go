// Package rename implements the deterministic bulk rename of image and
// sidecar pairs.
//
// Images are renamed to IMG_{zero-padded sequence}{original extension} in
// sorted order; sidecars whose basename matched a renamed image follow,
// with their internal filename reference repaired. Renames never
// overwrite an existing destination, individual failures do not abort the
// batch, and the whole operation is idempotent: a second run over the
// same tree renames nothing.
//
// There is no undo. Callers are expected to confirm with the user before
// invoking this.
package rename
