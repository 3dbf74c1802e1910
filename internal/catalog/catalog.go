package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"labelflow/internal/imagetypes"
	"labelflow/internal/labels"
	"labelflow/internal/logging"
	"labelflow/internal/memory"
	"labelflow/internal/metrics"
	"labelflow/internal/rename"
	"labelflow/internal/scanner"
	"labelflow/internal/sidecar"
)

// Events are the callbacks the catalog raises toward its shell. All
// fields are optional. Progress and LoadingFinished fire on the hash
// worker's goroutine.
type Events struct {
	// Progress reports per-item progress: (current, total, label).
	Progress func(current, total int, label string)

	// LoadingFinished fires exactly once when the hash worker completes
	// a full pass without being cancelled.
	LoadingFinished func()

	// HashResolved fires when an entry's content hash becomes available.
	HashResolved func(index int)
}

// Options configure a catalog.
type Options struct {
	// EnableBase64 controls embedding of file bytes into sidecars.
	EnableBase64 bool

	// MaxEmbedBytes caps the file size eligible for embedding
	// (0 = derive from system memory).
	MaxEmbedBytes int64

	// Compatibility enables the legacy V0.0.2 sidecar schema.
	Compatibility bool

	// SavePath overrides where sidecars are written; empty means next to
	// each image.
	SavePath string

	// Memory tunes the batch sizing policy.
	Memory memory.Config

	// Events are the outward callbacks.
	Events Events
}

// Catalog is the in-memory ordered collection of discovered images and
// their lazily computed hash, annotation, and pixel state.
type Catalog struct {
	codec  *sidecar.Codec
	memCfg memory.Config
	events Events

	mu         sync.Mutex
	dir        string
	savePath   string
	entries    []*Entry
	current    int
	batchSize  int
	byHash     map[string]sidecar.Annotation
	labelIndex *labels.Index

	workerMu sync.Mutex
	worker   *hashWorker

	watcher *scanner.Watcher
}

// New creates a catalog. No directory is scanned until SetWorkDirectory.
func New(opts Options) *Catalog {
	memCfg := opts.Memory

	maxEmbed := opts.MaxEmbedBytes
	if maxEmbed == 0 {
		maxEmbed = memCfg.EmbedCeiling()
	}

	return &Catalog{
		codec: &sidecar.Codec{
			EmbedBase64:   opts.EnableBase64,
			MaxEmbedBytes: maxEmbed,
			Compatibility: opts.Compatibility,
		},
		memCfg:   memCfg,
		events:   opts.Events,
		savePath: opts.SavePath,
		current:  -1,
		byHash:   make(map[string]sidecar.Annotation),
	}
}

// SetWorkDirectory points the catalog at a directory tree: it loads the
// label index, scans for images and sidecars (recovering orphans), builds
// the sorted entry sequence, eagerly loads the first batch, and starts
// background hashing. Previous state is discarded.
func (c *Catalog) SetWorkDirectory(dir string) error {
	c.stopWorkerAndWait()

	c.mu.Lock()
	c.dir = dir
	c.entries = nil
	c.current = -1
	c.byHash = make(map[string]sidecar.Annotation)
	c.labelIndex = labels.New(dir, c.codec)
	c.mu.Unlock()

	if err := c.labelIndex.Load(); err != nil {
		logging.Warn("failed to load label index: %v", err)
	}

	result, err := scanner.Scan(dir)
	if err != nil {
		metrics.CatalogEntries.Set(0)
		return fmt.Errorf("scan failed: %w", err)
	}

	c.buildEntries(result)
	c.loadFirstBatch()
	c.startHashWorker()

	return nil
}

// Rescan re-runs the full scan of the current working directory.
func (c *Catalog) Rescan() error {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()

	if dir == "" {
		return nil
	}
	return c.SetWorkDirectory(dir)
}

// buildEntries turns a scan result into the sorted entry sequence and
// associates each entry with its sidecar annotation.
func (c *Catalog) buildEntries(result *scanner.Result) {
	// Index sidecars by lowercased basename for the filename join.
	sidecarsByBase := make(map[string]string, len(result.Sidecars))
	for _, path := range result.Sidecars {
		base := strings.ToLower(imagetypes.BaseName(filepath.Base(path)))
		sidecarsByBase[base] = path
	}

	entries := make([]*Entry, 0, len(result.Images))
	byHash := make(map[string]sidecar.Annotation)

	for _, path := range result.Images {
		entry := NewEntry(path, filepath.Base(path))
		entry.Recovered = result.Recovered[path]

		base := strings.ToLower(imagetypes.BaseName(entry.Filename))
		if sidecarPath, ok := sidecarsByBase[base]; ok {
			entry.setSidecarFile(sidecarPath)
			if rec, err := sidecar.ReadRecord(sidecarPath); err == nil {
				entry.SetAnnotation(c.codec.DecodeAnnotation(rec))
			} else {
				logging.Debug("skipping unreadable sidecar for %s: %v", entry.Filename, err)
			}
		}

		entries = append(entries, entry)
	}

	// Hash-keyed annotations from every sidecar, matched or not. These
	// let annotations survive image renames: the worker backfills any
	// entry whose live hash appears here.
	for _, path := range result.Sidecars {
		rec, err := sidecar.ReadRecord(path)
		if err != nil || rec.Hash == "" {
			continue
		}
		if ann := c.codec.DecodeAnnotation(rec); !ann.IsEmpty() {
			byHash[rec.Hash] = ann
		}
	}

	// Navigation order: case-insensitive by filename, path as the
	// tiebreaker so the order is deterministic across rescans.
	sort.SliceStable(entries, func(i, j int) bool {
		a := strings.ToLower(entries[i].Filename)
		b := strings.ToLower(entries[j].Filename)
		if a != b {
			return a < b
		}
		return entries[i].Path < entries[j].Path
	})

	c.mu.Lock()
	c.entries = entries
	c.byHash = byHash
	if len(entries) > 0 {
		c.current = 0
	} else {
		c.current = -1
	}
	c.mu.Unlock()

	metrics.CatalogEntries.Set(float64(len(entries)))
}

// loadFirstBatch derives the batch size from a sampled prefix and decodes
// the first batch of images eagerly.
func (c *Catalog) loadFirstBatch() {
	c.mu.Lock()
	entries := c.entries
	c.mu.Unlock()

	total := len(entries)
	if total == 0 {
		return
	}

	sample := 5
	if total < sample {
		sample = total
	}
	var sampled int64
	for i := 0; i < sample; i++ {
		sampled += entries[i].FileSize()
	}
	avg := sampled / int64(sample)

	batchSize := c.memCfg.BatchSize(total, avg)

	c.mu.Lock()
	c.batchSize = batchSize
	c.mu.Unlock()

	metrics.CatalogBatchSize.Set(float64(batchSize))
	logging.Info("batch size set to %d (avg file size %d bytes)", batchSize, avg)

	for i := 0; i < batchSize && i < total; i++ {
		entries[i].Load()
		if c.events.Progress != nil {
			c.events.Progress(i+1, total, "loading "+entries[i].Filename)
		}
	}
	c.updateLoadedGauge()
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CurrentIndex returns the navigation pointer, -1 when the catalog is
// empty.
func (c *Catalog) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Current returns the entry under the navigation pointer, nil when the
// catalog is empty.
func (c *Catalog) Current() *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < 0 || c.current >= len(c.entries) {
		return nil
	}
	return c.entries[c.current]
}

// Entry returns the entry at index, nil when out of range.
func (c *Catalog) Entry(index int) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.entries) {
		return nil
	}
	return c.entries[index]
}

// Next advances the navigation pointer. Returns false at the end.
func (c *Catalog) Next() bool {
	c.mu.Lock()
	if c.current < 0 || c.current >= len(c.entries)-1 {
		c.mu.Unlock()
		return false
	}
	c.current++
	target := c.entries[c.current]
	c.mu.Unlock()

	target.Load()
	c.evictDistant()
	return true
}

// Prev moves the navigation pointer back. Returns false at the start.
func (c *Catalog) Prev() bool {
	c.mu.Lock()
	if c.current <= 0 {
		c.mu.Unlock()
		return false
	}
	c.current--
	target := c.entries[c.current]
	c.mu.Unlock()

	target.Load()
	c.evictDistant()
	return true
}

// JumpTo moves the navigation pointer to index. Returns false when index
// is out of range.
func (c *Catalog) JumpTo(index int) bool {
	c.mu.Lock()
	if index < 0 || index >= len(c.entries) {
		c.mu.Unlock()
		return false
	}
	c.current = index
	target := c.entries[index]
	c.mu.Unlock()

	target.Load()
	c.evictDistant()
	return true
}

// evictDistant unloads pixel data for entries far from the navigation
// pointer once more than a batch worth of images is resident.
func (c *Catalog) evictDistant() {
	c.mu.Lock()
	entries := c.entries
	current := c.current
	window := c.batchSize
	c.mu.Unlock()

	if window <= 0 || len(entries) <= window {
		return
	}

	loaded := 0
	for _, e := range entries {
		if e.Loaded() {
			loaded++
		}
	}
	if loaded <= window {
		c.updateLoadedGauge()
		return
	}

	for i, e := range entries {
		distance := i - current
		if distance < 0 {
			distance = -distance
		}
		if distance > window && e.Loaded() {
			e.Unload()
		}
	}
	c.updateLoadedGauge()
}

func (c *Catalog) updateLoadedGauge() {
	c.mu.Lock()
	entries := c.entries
	c.mu.Unlock()

	loaded := 0
	for _, e := range entries {
		if e.Loaded() {
			loaded++
		}
	}
	metrics.CatalogImagesLoaded.Set(float64(loaded))
}

// SaveAnnotation persists the payload as the current entry's annotation.
//
// Called with no current entry, or before the entry's hash has resolved,
// it defers: the call is a logged no-op, never a surfaced error. On
// success the sidecar is rewritten whole, the hash-keyed annotation map
// updated, and new labels merged into the label index.
func (c *Catalog) SaveAnnotation(p sidecar.Payload) error {
	entry := c.Current()
	if entry == nil {
		metrics.CatalogAnnotationSaves.WithLabelValues("deferred").Inc()
		return nil
	}

	hash := entry.ContentHash()
	if hash == "" {
		logging.Debug("deferring annotation save for %s: hash not yet computed", entry.Filename)
		metrics.CatalogAnnotationSaves.WithLabelValues("deferred").Inc()
		return nil
	}

	ann := sidecar.Resolve(p)
	entry.SetAnnotation(ann)

	base64Data := entry.computeBase64(c.codec)
	rec := c.codec.Encode(entry.Filename, hash, entry.FileSize(), base64Data, ann)

	path := filepath.Join(c.saveDirFor(entry), imagetypes.SidecarName(entry.Filename))
	if err := sidecar.WriteRecord(path, rec); err != nil {
		logging.Error("failed to save annotation for %s: %v", entry.Filename, err)
		metrics.CatalogAnnotationSaves.WithLabelValues("error").Inc()
		return err
	}

	entry.setSidecarFile(path)

	c.mu.Lock()
	c.byHash[hash] = ann
	c.mu.Unlock()

	if len(ann.Labels) > 0 {
		c.labelIndex.AddAll(ann.Labels)
	}

	metrics.CatalogAnnotationSaves.WithLabelValues("success").Inc()
	return nil
}

// saveDirFor returns where an entry's sidecar is written: the configured
// save path if it exists, else next to the image.
func (c *Catalog) saveDirFor(entry *Entry) string {
	c.mu.Lock()
	savePath := c.savePath
	c.mu.Unlock()

	if savePath != "" {
		if info, err := os.Stat(savePath); err == nil && info.IsDir() {
			return savePath
		}
		logging.Warn("configured save path %s unavailable, saving next to image", savePath)
	}
	return filepath.Dir(entry.Path)
}

// FindFirstUnlabeled moves the navigation pointer to the first entry with
// an empty annotation (or 0 when every entry is annotated) and reports
// the annotation mode of the first non-empty entry seen, as a best-effort
// hint of which mode was in use. ok is false when no annotated entry was
// found.
func (c *Catalog) FindFirstUnlabeled() (mode imagetypes.Mode, ok bool) {
	c.mu.Lock()
	entries := c.entries
	c.mu.Unlock()

	if len(entries) == 0 {
		return "", false
	}

	firstEmpty := -1
	for i, entry := range entries {
		m := entry.Annotation().Mode()
		if m == imagetypes.ModeEmpty {
			if firstEmpty < 0 {
				firstEmpty = i
			}
			continue
		}
		if !ok {
			mode = m
			ok = true
		}
	}

	target := firstEmpty
	if target < 0 {
		logging.Info("all entries annotated, starting from the first")
		target = 0
	} else {
		logging.Info("first unannotated entry: %d/%d", target+1, len(entries))
	}
	c.JumpTo(target)

	return mode, ok
}

// SetSavePath overrides where sidecars are written.
func (c *Catalog) SetSavePath(path string) {
	c.mu.Lock()
	c.savePath = path
	c.mu.Unlock()
}

// SetBase64Enabled toggles embedding of file bytes into sidecars. A
// running hash pass keeps the settings it started with; the change takes
// effect from the next pass.
func (c *Catalog) SetBase64Enabled(enabled bool) {
	c.mu.Lock()
	c.codec.EmbedBase64 = enabled
	c.mu.Unlock()
}

// SetCompatibilityMode toggles the legacy V0.0.2 schema handling.
func (c *Catalog) SetCompatibilityMode(enabled bool) {
	c.mu.Lock()
	c.codec.Compatibility = enabled
	c.mu.Unlock()
	logging.Info("compatibility mode %s", map[bool]string{true: "enabled", false: "disabled"}[enabled])
}

// AvailableLabels returns the aggregate label set.
func (c *Catalog) AvailableLabels() []string {
	c.mu.Lock()
	ix := c.labelIndex
	c.mu.Unlock()

	if ix == nil {
		return nil
	}
	return ix.All()
}

// SetAvailableLabels replaces the aggregate label set.
func (c *Catalog) SetAvailableLabels(list []string) error {
	c.mu.Lock()
	ix := c.labelIndex
	c.mu.Unlock()

	if ix == nil {
		return fmt.Errorf("no working directory set")
	}
	return ix.SetAll(list)
}

// RenameAll bulk-renames every image and sidecar under the working
// directory to the sequential scheme, then rescans the catalog. Returns
// the number of files renamed.
func (c *Catalog) RenameAll() (int, error) {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()

	if dir == "" {
		return 0, fmt.Errorf("no working directory set")
	}

	c.stopWorkerAndWait()

	count, err := rename.All(dir)
	if err != nil {
		return count, err
	}

	logging.Info("renamed %d files, rescanning", count)
	if err := c.Rescan(); err != nil {
		return count, err
	}
	return count, nil
}

// Watch starts a filesystem watcher on the working directory that
// triggers a rescan when the tree changes.
func (c *Catalog) Watch() error {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()

	if dir == "" {
		return fmt.Errorf("no working directory set")
	}

	c.watcher = scanner.NewWatcher(dir, func() {
		logging.Info("directory changed, rescanning")
		if err := c.Rescan(); err != nil {
			logging.Error("rescan after change failed: %v", err)
		}
	})
	return c.watcher.Start()
}

// Close stops the hash worker and the watcher.
func (c *Catalog) Close() {
	c.stopWorkerAndWait()
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
}
