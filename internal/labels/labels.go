package labels

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"labelflow/internal/fsutil"
	"labelflow/internal/imagetypes"
	"labelflow/internal/logging"
	"labelflow/internal/metrics"
	"labelflow/internal/sidecar"
)

// CacheFilename is the label cache file kept in the working directory.
const CacheFilename = "labels_cache.json"

// LegacyFilename is the V0.0.2 global label file (content hash to
// annotation string), read for backward compatibility only.
const LegacyFilename = "labels.json"

// cacheFile is the on-disk shape of the label cache.
type cacheFile struct {
	AvailableLabels []string `json:"available_labels"`
}

// Index is the aggregate, deduplicated set of all labels seen across
// sidecars under the working directory plus any manually added label.
// Order is first-seen and stable across saves. The set is additive: a
// label never disappears just because no sidecar references it anymore.
type Index struct {
	mu        sync.Mutex
	dir       string
	cachePath string
	codec     *sidecar.Codec

	labels []string
	seen   map[string]bool

	// legacy holds the V0.0.2 labels.json mapping (hash -> annotation),
	// populated only in compatibility mode.
	legacy map[string]string
}

// New creates a label index rooted at the working directory.
func New(dir string, codec *sidecar.Codec) *Index {
	return &Index{
		dir:       dir,
		cachePath: filepath.Join(dir, CacheFilename),
		codec:     codec,
		seen:      make(map[string]bool),
		legacy:    make(map[string]string),
	}
}

// Load populates the index: the cache file first, then the legacy global
// label file in compatibility mode, then a scan of every sidecar under
// the working directory. Newly discovered labels are persisted back to
// the cache. Per-file failures are logged and skipped.
func (ix *Index) Load() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.loadCacheLocked()
	ix.loadLegacyLocked()

	added := ix.extractFromSidecarsLocked()
	if added > 0 {
		logging.Info("extracted %d new labels from sidecars", added)
		if err := ix.saveLocked(); err != nil {
			logging.Warn("failed to save label cache after extraction: %v", err)
		}
	}

	metrics.LabelIndexSize.Set(float64(len(ix.labels)))
	return nil
}

func (ix *Index) loadCacheLocked() {
	data, err := os.ReadFile(ix.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("failed to read label cache %s: %v", ix.cachePath, err)
		}
		return
	}

	var cache cacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		logging.Warn("failed to parse label cache %s: %v", ix.cachePath, err)
		return
	}

	for _, label := range cache.AvailableLabels {
		ix.addLocked(label)
	}
	logging.Debug("loaded %d cached labels", len(ix.labels))
}

func (ix *Index) loadLegacyLocked() {
	if !ix.codec.Compatibility {
		return
	}

	path := filepath.Join(ix.dir, LegacyFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("failed to read legacy label file %s: %v", path, err)
		}
		return
	}

	if err := json.Unmarshal(data, &ix.legacy); err != nil {
		logging.Warn("failed to parse legacy label file %s: %v", path, err)
		return
	}
	logging.Info("compatibility mode: loaded %d legacy annotations", len(ix.legacy))
}

// extractFromSidecarsLocked walks the working directory and unions label
// fields from every sidecar. Returns the number of labels added.
func (ix *Index) extractFromSidecarsLocked() int {
	added := 0

	err := filepath.WalkDir(ix.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("error accessing %s during label extraction: %v", path, err)
			return nil
		}
		if d.IsDir() || !imagetypes.IsSidecarFile(d.Name()) {
			return nil
		}

		rec, readErr := sidecar.ReadRecord(path)
		if readErr != nil {
			logging.Debug("skipping unparseable sidecar %s: %v", path, readErr)
			return nil
		}

		for _, label := range ix.labelsFromRecord(rec) {
			if ix.addLocked(label) {
				added++
			}
		}
		return nil
	})
	if err != nil {
		logging.Warn("label extraction walk failed: %v", err)
	}

	return added
}

// labelsFromRecord collects every label a record can carry: the current
// "label" field, and in compatibility mode the V0.0.2 root "labels" key
// plus one level of nested JSON inside the legacy annotation string.
func (ix *Index) labelsFromRecord(rec *sidecar.Record) []string {
	out := append([]string{}, rec.Label...)

	if ix.codec.Compatibility {
		out = append(out, rec.LegacyLabels...)

		if rec.Annotation != "" {
			nested := ix.codec.DecodeAnnotation(&sidecar.Record{Annotation: rec.Annotation})
			out = append(out, nested.Labels...)
		}
	}

	return out
}

// addLocked inserts a label if unseen, preserving insertion order.
func (ix *Index) addLocked(label string) bool {
	if label == "" || ix.seen[label] {
		return false
	}
	ix.seen[label] = true
	ix.labels = append(ix.labels, label)
	return true
}

// Add inserts a label and persists the cache if it was new.
func (ix *Index) Add(label string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !ix.addLocked(label) {
		return false
	}

	metrics.LabelIndexSize.Set(float64(len(ix.labels)))
	if err := ix.saveLocked(); err != nil {
		logging.Warn("failed to save label cache: %v", err)
	}
	return true
}

// AddAll inserts each label and persists the cache if any was new.
func (ix *Index) AddAll(labels []string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	added := 0
	for _, label := range labels {
		if ix.addLocked(label) {
			added++
		}
	}

	if added > 0 {
		metrics.LabelIndexSize.Set(float64(len(ix.labels)))
		if err := ix.saveLocked(); err != nil {
			logging.Warn("failed to save label cache: %v", err)
		}
	}
	return added
}

// SetAll replaces the label set and persists it.
func (ix *Index) SetAll(labels []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.labels = nil
	ix.seen = make(map[string]bool)
	for _, label := range labels {
		ix.addLocked(label)
	}

	metrics.LabelIndexSize.Set(float64(len(ix.labels)))
	return ix.saveLocked()
}

// All returns a copy of the label set in first-seen order.
func (ix *Index) All() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make([]string, len(ix.labels))
	copy(out, ix.labels)
	return out
}

// LegacyAnnotation looks up a legacy global annotation by content hash.
// Only populated in compatibility mode.
func (ix *Index) LegacyAnnotation(hash string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ann, ok := ix.legacy[hash]
	return ann, ok
}

// Save persists the current label set to the cache file.
func (ix *Index) Save() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.saveLocked()
}

func (ix *Index) saveLocked() error {
	cache := cacheFile{AvailableLabels: ix.labels}
	if cache.AvailableLabels == nil {
		cache.AvailableLabels = []string{}
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		metrics.LabelCacheWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to marshal label cache: %w", err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(ix.cachePath, data, 0o644); err != nil {
		metrics.LabelCacheWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write label cache: %w", err)
	}

	metrics.LabelCacheWrites.WithLabelValues("success").Inc()
	return nil
}
