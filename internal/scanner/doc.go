// Package scanner discovers images and their annotation sidecars under a
// working directory.
//
// A scan walks the tree recursively, classifying files by extension into
// images and sidecar JSON (reserved bookkeeping filenames excluded). For
// every sidecar whose image is missing, the scanner attempts recovery:
// the sidecar's embedded base64 payload is decoded and written out under
// the recorded filename. Recovery never overwrites an existing file and
// a corrupt payload only skips that one sidecar.
//
// The package also provides a debounced fsnotify watcher so callers can
// rescan when the directory changes underneath them.
package scanner
