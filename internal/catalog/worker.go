package catalog

import (
	"labelflow/internal/logging"
	"labelflow/internal/metrics"
	"labelflow/internal/sidecar"
)

// hashWorker is the single background goroutine that fills in content
// hashes and embedded encodings for the whole catalog, strictly in
// catalog order starting at index 0.
//
// At most one worker runs against a catalog at a time; starting a new one
// first requests and awaits cancellation of the prior one. Cancellation
// is cooperative: the stop flag is checked between items, so each item's
// work (hash, sidecar repair, annotation backfill) lands atomically from
// the catalog's point of view.
type hashWorker struct {
	c        *Catalog
	stopChan chan struct{}
	doneChan chan struct{}
}

// startHashWorker launches a fresh worker pass, replacing any running one.
func (c *Catalog) startHashWorker() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	if c.worker != nil {
		close(c.worker.stopChan)
		<-c.worker.doneChan
	}

	w := &hashWorker{
		c:        c,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	c.worker = w
	go w.run()
}

// stopWorkerAndWait requests cancellation of the running worker, if any,
// and blocks until it has halted.
func (c *Catalog) stopWorkerAndWait() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()

	if c.worker == nil {
		return
	}
	close(c.worker.stopChan)
	<-c.worker.doneChan
	c.worker = nil
}

func (w *hashWorker) run() {
	defer close(w.doneChan)

	metrics.HashWorkerRunning.Set(1)
	defer metrics.HashWorkerRunning.Set(0)

	// Snapshot the codec settings so a toggle mid-pass cannot race the
	// worker; the pass finishes with the settings it started with.
	w.c.mu.Lock()
	entries := w.c.entries
	codec := *w.c.codec
	w.c.mu.Unlock()

	total := len(entries)
	cancelled := false

	for i, entry := range entries {
		select {
		case <-w.stopChan:
			cancelled = true
		default:
		}
		if cancelled {
			logging.Info("hash worker cancelled at %d/%d", i, total)
			break
		}

		w.processEntry(i, entry, &codec)
		metrics.HashWorkerItemsProcessed.Inc()

		if w.c.events.Progress != nil {
			w.c.events.Progress(i+1, total, entry.Filename)
		}
	}

	if !cancelled {
		logging.Info("hash worker finished: %d entries", total)
		if w.c.events.LoadingFinished != nil {
			w.c.events.LoadingFinished()
		}
	}
}

// processEntry does the per-item work: compute the hash if absent, repair
// the entry's sidecar if its stored hash disagrees, precompute the
// size-gated base64 encoding, and backfill the annotation by hash when
// the entry has none.
func (w *hashWorker) processEntry(index int, entry *Entry, codec *sidecar.Codec) {
	hadHash := entry.ContentHash() != ""

	hash := entry.computeHash()
	if hash == "" {
		return
	}

	if sidecarPath := entry.sidecarFile(); sidecarPath != "" {
		repaired, err := codec.Repair(sidecarPath, entry.Path, hash, entry.refreshSize())
		if err != nil {
			logging.Warn("sidecar repair failed for %s: %v", entry.Filename, err)
		}
		if repaired {
			entry.invalidateBase64()
		}
	}

	if codec.EmbedBase64 {
		entry.computeBase64(codec)
	}

	w.backfillAnnotation(hash, entry)

	if !hadHash && w.c.events.HashResolved != nil {
		w.c.events.HashResolved(index)
	}
}

// backfillAnnotation associates an annotation with the entry by content
// hash when the filename join found nothing: first from sidecars seen
// during the scan (annotations survive renames this way), then from the
// legacy global label file in compatibility mode.
func (w *hashWorker) backfillAnnotation(hash string, entry *Entry) {
	if !entry.Annotation().IsEmpty() {
		return
	}

	w.c.mu.Lock()
	ann, ok := w.c.byHash[hash]
	w.c.mu.Unlock()

	if ok && !ann.IsEmpty() {
		logging.Debug("associated annotation by hash for %s", entry.Filename)
		entry.SetAnnotation(ann)
		return
	}

	if raw, found := w.c.labelIndex.LegacyAnnotation(hash); found && raw != "" {
		ann := sidecar.Resolve(sidecar.PlainText(raw))
		entry.SetAnnotation(ann)

		w.c.mu.Lock()
		w.c.byHash[hash] = ann
		w.c.mu.Unlock()
	}
}
