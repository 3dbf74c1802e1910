package catalog

import (
	"image"
	"sync"

	"labelflow/internal/hashing"
	"labelflow/internal/logging"
	"labelflow/internal/sidecar"

	"github.com/disintegration/imaging"
)

// Entry is one image in the catalog: its filesystem identity plus lazily
// computed hash, annotation, and pixel state.
//
// Field ownership is split: the background hash worker is the sole writer
// of the content hash and embedded base64; the foreground owns annotation
// and pixel data. The mutex makes the cross-goroutine reads safe without
// changing that discipline.
type Entry struct {
	// Path is the absolute filesystem path, stable within one scan.
	Path string

	// Filename is the base name, the join key to sidecars and renames.
	Filename string

	// Recovered is true when the file bytes were reconstructed from a
	// sidecar's embedded encoding rather than found directly.
	Recovered bool

	// sidecarPath is the entry's annotation file, empty when none was
	// discovered during the scan.
	sidecarPath string

	mu         sync.Mutex
	hash       string
	hashDone   bool
	annotation sidecar.Annotation
	base64Data *string
	base64Done bool
	fileSize   int64
	sizeDone   bool

	pixels image.Image
	loaded bool
}

// NewEntry creates a catalog entry for the image at path.
func NewEntry(path, filename string) *Entry {
	return &Entry{Path: path, Filename: filename}
}

// sidecarFile returns the entry's current sidecar path, "" when none.
func (e *Entry) sidecarFile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sidecarPath
}

// setSidecarFile records where the entry's sidecar lives.
func (e *Entry) setSidecarFile(path string) {
	e.mu.Lock()
	e.sidecarPath = path
	e.mu.Unlock()
}

// ContentHash returns the memoized content hash, or "" when it has not
// been computed yet (or the file was unreadable).
func (e *Entry) ContentHash() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hash
}

// computeHash computes the content hash exactly once per process
// lifetime. An unreadable file records an empty hash; the failure is
// remembered so the read is not retried on every access.
func (e *Entry) computeHash() string {
	e.mu.Lock()
	if e.hashDone {
		h := e.hash
		e.mu.Unlock()
		return h
	}
	e.mu.Unlock()

	h, err := hashing.HashFile(e.Path)
	if err != nil {
		logging.Warn("hash unavailable for %s: %v", e.Filename, err)
		h = ""
	}

	e.mu.Lock()
	e.hash = h
	e.hashDone = true
	e.mu.Unlock()
	return h
}

// FileSize returns the memoized file size in bytes (0 when unknown).
func (e *Entry) FileSize() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sizeDone {
		e.fileSize = hashing.FileSize(e.Path)
		e.sizeDone = true
	}
	return e.fileSize
}

// refreshSize re-stats the file, used after a repair detected the file
// changed underneath us.
func (e *Entry) refreshSize() int64 {
	size := hashing.FileSize(e.Path)
	e.mu.Lock()
	e.fileSize = size
	e.sizeDone = true
	e.mu.Unlock()
	return size
}

// Annotation returns the entry's current annotation.
func (e *Entry) Annotation() sidecar.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.annotation
}

// SetAnnotation replaces the entry's annotation.
func (e *Entry) SetAnnotation(ann sidecar.Annotation) {
	e.mu.Lock()
	e.annotation = ann
	e.mu.Unlock()
}

// computeBase64 memoizes the size-gated base64 encoding of the file.
// With embedding disabled it returns nil without touching the memo, so
// enabling embedding later still produces a payload.
func (e *Entry) computeBase64(codec *sidecar.Codec) *string {
	if !codec.EmbedBase64 {
		return nil
	}

	e.mu.Lock()
	if e.base64Done {
		data := e.base64Data
		e.mu.Unlock()
		return data
	}
	e.mu.Unlock()

	data := codec.EmbedFile(e.Path, e.FileSize())

	e.mu.Lock()
	e.base64Data = data
	e.base64Done = true
	e.mu.Unlock()
	return data
}

// invalidateBase64 drops the memoized encoding so the next save
// re-embeds, used after a hash repair.
func (e *Entry) invalidateBase64() {
	e.mu.Lock()
	e.base64Data = nil
	e.base64Done = false
	e.mu.Unlock()
}

// Load decodes the image into memory if it is not already resident.
// Returns false when decoding failed; the failure is logged and the
// entry stays usable for annotation.
func (e *Entry) Load() bool {
	e.mu.Lock()
	if e.loaded {
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()

	img, err := imaging.Open(e.Path)
	if err != nil {
		logging.Warn("failed to decode %s: %v", e.Filename, err)
		return false
	}

	e.mu.Lock()
	e.pixels = img
	e.loaded = true
	e.mu.Unlock()
	return true
}

// Unload evicts the decoded pixel data from memory.
func (e *Entry) Unload() {
	e.mu.Lock()
	e.pixels = nil
	e.loaded = false
	e.mu.Unlock()
}

// Loaded reports whether pixel data is resident.
func (e *Entry) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Pixels returns the decoded image, or nil when not resident.
func (e *Entry) Pixels() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pixels
}
