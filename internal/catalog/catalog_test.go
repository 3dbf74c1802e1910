package catalog

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"labelflow/internal/hashing"
	"labelflow/internal/imagetypes"
	"labelflow/internal/labels"
	"labelflow/internal/sidecar"
)

// writePNG writes a tiny valid PNG whose bytes vary with seed, so
// different fixtures produce different content hashes.
func writePNG(t *testing.T, path string, seed uint8) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: seed, G: 0, B: 255 - seed, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("seed %s failed: %v", path, err)
	}
}

func writeSidecarRecord(t *testing.T, path string, rec *sidecar.Record) {
	t.Helper()
	if err := sidecar.WriteRecord(path, rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
}

// openCatalog points a fresh catalog at dir and blocks until the
// background hash pass completes.
func openCatalog(t *testing.T, dir string, opts Options) *Catalog {
	t.Helper()

	finished := make(chan struct{}, 4)
	userFinished := opts.Events.LoadingFinished
	opts.Events.LoadingFinished = func() {
		if userFinished != nil {
			userFinished()
		}
		finished <- struct{}{}
	}

	c := New(opts)
	if err := c.SetWorkDirectory(dir); err != nil {
		t.Fatalf("SetWorkDirectory failed: %v", err)
	}
	t.Cleanup(c.Close)

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for background hashing")
	}
	return c
}

func TestEntriesSortedCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "Banana.png"), 1)
	writePNG(t, filepath.Join(dir, "apple.png"), 2)
	writePNG(t, filepath.Join(dir, "cherry.png"), 3)

	c := openCatalog(t, dir, Options{})

	want := []string{"apple.png", "Banana.png", "cherry.png"}
	if c.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", c.Len(), len(want))
	}
	for i, name := range want {
		if got := c.Entry(i).Filename; got != name {
			t.Errorf("entry %d = %s, want %s", i, got, name)
		}
	}
}

func TestNavigationBounds(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 1)
	writePNG(t, filepath.Join(dir, "b.png"), 2)

	c := openCatalog(t, dir, Options{})

	if c.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex = %d, want 0", c.CurrentIndex())
	}
	if c.Prev() {
		t.Error("Prev at start returned true")
	}
	if !c.Next() {
		t.Error("Next returned false with room to advance")
	}
	if c.Next() {
		t.Error("Next at end returned true")
	}
	if c.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", c.CurrentIndex())
	}
	if !c.Prev() {
		t.Error("Prev returned false with room to go back")
	}

	if c.JumpTo(-1) || c.JumpTo(2) {
		t.Error("JumpTo out of range returned true")
	}
	if !c.JumpTo(1) {
		t.Error("JumpTo in range returned false")
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := openCatalog(t, t.TempDir(), Options{})

	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if c.CurrentIndex() != -1 {
		t.Errorf("CurrentIndex = %d, want -1", c.CurrentIndex())
	}
	if c.Current() != nil {
		t.Error("Current is non-nil for an empty catalog")
	}
	if c.Next() || c.Prev() {
		t.Error("navigation succeeded on an empty catalog")
	}
}

func TestSmallCatalogLoadsEverything(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		writePNG(t, filepath.Join(dir, string(rune('a'+i))+".png"), uint8(i))
	}

	c := openCatalog(t, dir, Options{})

	if c.batchSize != 3 {
		t.Errorf("batchSize = %d, want 3", c.batchSize)
	}
	for i := 0; i < c.Len(); i++ {
		if !c.Entry(i).Loaded() {
			t.Errorf("entry %d not loaded in a small catalog", i)
		}
	}
}

func TestFindFirstUnlabeled(t *testing.T) {
	dir := t.TempDir()
	annotated := map[int]bool{0: true, 1: true, 3: true}
	for i := 0; i < 5; i++ {
		name := string(rune('a'+i)) + ".png"
		writePNG(t, filepath.Join(dir, name), uint8(i))
		if annotated[i] {
			writeSidecarRecord(t, filepath.Join(dir, imagetypes.SidecarName(name)), &sidecar.Record{
				Filename: name,
				Describe: "described",
			})
		}
	}

	c := openCatalog(t, dir, Options{})

	mode, ok := c.FindFirstUnlabeled()
	if c.CurrentIndex() != 2 {
		t.Errorf("CurrentIndex = %d, want 2 (first unannotated)", c.CurrentIndex())
	}
	if !ok || mode != imagetypes.ModeDescription {
		t.Errorf("mode = %q, ok = %v, want description mode", mode, ok)
	}
}

func TestFindFirstUnlabeledAllAnnotated(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		name := string(rune('a'+i)) + ".png"
		writePNG(t, filepath.Join(dir, name), uint8(i))
		writeSidecarRecord(t, filepath.Join(dir, imagetypes.SidecarName(name)), &sidecar.Record{
			Filename: name,
			Label:    []string{"done"},
		})
	}

	c := openCatalog(t, dir, Options{})
	c.JumpTo(2)

	mode, ok := c.FindFirstUnlabeled()
	if c.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex = %d, want 0 when everything is annotated", c.CurrentIndex())
	}
	if !ok || mode != imagetypes.ModeLabel {
		t.Errorf("mode = %q, ok = %v, want label mode", mode, ok)
	}
}

func TestLoadingFinishedFiresExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 1)

	finished := make(chan struct{}, 4)
	openCatalog(t, dir, Options{Events: Events{
		LoadingFinished: func() { finished <- struct{}{} },
	}})

	<-finished
	select {
	case <-finished:
		t.Error("LoadingFinished fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoadingFinishedFiresPerPass(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 1)

	// Completion is per hash pass, not per process: a rescan runs a new
	// pass and fires the callback again, so consumers must tolerate
	// repeat invocations.
	finished := make(chan struct{}, 4)
	c := New(Options{Events: Events{
		LoadingFinished: func() { finished <- struct{}{} },
	}})
	if err := c.SetWorkDirectory(dir); err != nil {
		t.Fatalf("SetWorkDirectory failed: %v", err)
	}
	t.Cleanup(c.Close)

	waitFinished := func(pass string) {
		select {
		case <-finished:
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for %s pass", pass)
		}
	}
	waitFinished("first")

	if err := c.Rescan(); err != nil {
		t.Fatalf("Rescan failed: %v", err)
	}
	waitFinished("rescan")
}

func TestWorkerResolvesHashes(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 1)
	writePNG(t, filepath.Join(dir, "b.png"), 2)

	resolved := make(chan int, 8)
	c := openCatalog(t, dir, Options{Events: Events{
		HashResolved: func(index int) { resolved <- index },
	}})

	for i := 0; i < c.Len(); i++ {
		if c.Entry(i).ContentHash() == "" {
			t.Errorf("entry %d has no hash after the worker finished", i)
		}
	}
	if len(resolved) != 2 {
		t.Errorf("HashResolved fired %d times, want 2", len(resolved))
	}
}

func TestWorkerBackfillsAnnotationByHash(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "renamed.png")
	writePNG(t, imgPath, 7)

	hash, err := hashing.HashFile(imgPath)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	// A sidecar left over from before the image was renamed: no filename
	// match, but the stored hash matches the live bytes.
	writeSidecarRecord(t, filepath.Join(dir, "old-name.json"), &sidecar.Record{
		Filename: "old-name.png",
		Hash:     hash,
		Describe: "survives the rename",
	})

	c := openCatalog(t, dir, Options{})

	ann := c.Entry(0).Annotation()
	if ann.Describe != "survives the rename" {
		t.Errorf("annotation = %+v, want hash-keyed backfill", ann)
	}
}

func TestWorkerRepairsStaleSidecar(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "pic.png")
	writePNG(t, imgPath, 9)

	sidecarPath := filepath.Join(dir, "pic.json")
	writeSidecarRecord(t, sidecarPath, &sidecar.Record{
		Filename: "pic.png",
		Hash:     "0000000000000000000000000000000000000000000000000000000000000000",
		Describe: "kept through repair",
	})

	c := openCatalog(t, dir, Options{})

	live, err := hashing.HashFile(imgPath)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	rec, err := sidecar.ReadRecord(sidecarPath)
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if rec.Hash != live {
		t.Errorf("sidecar hash = %s, want repaired to %s", rec.Hash, live)
	}
	if rec.Describe != "kept through repair" {
		t.Errorf("describe = %q, repair dropped the annotation", rec.Describe)
	}
	if ann := c.Entry(0).Annotation(); ann.Describe != "kept through repair" {
		t.Errorf("entry annotation = %+v", ann)
	}
}

func TestLegacyAnnotationBackfillInCompatMode(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "vintage.png")
	writePNG(t, imgPath, 3)

	hash, err := hashing.HashFile(imgPath)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	legacy := map[string]string{hash: "an old global caption"}
	data, _ := json.Marshal(legacy)
	if err := os.WriteFile(filepath.Join(dir, labels.LegacyFilename), data, 0o644); err != nil {
		t.Fatalf("seed legacy file failed: %v", err)
	}

	c := openCatalog(t, dir, Options{Compatibility: true})

	if ann := c.Entry(0).Annotation(); ann.Describe != "an old global caption" {
		t.Errorf("annotation = %+v, want legacy backfill", ann)
	}
}

func TestSaveAnnotationWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "dog.png")
	writePNG(t, imgPath, 5)

	c := openCatalog(t, dir, Options{})

	if err := c.SaveAnnotation(sidecar.Structured{
		Describe: "a dog on the beach",
		Labels:   []string{"dog", "beach", "dog"},
	}); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	rec, err := sidecar.ReadRecord(filepath.Join(dir, "dog.json"))
	if err != nil {
		t.Fatalf("sidecar not written: %v", err)
	}
	if rec.Filename != "dog.png" {
		t.Errorf("filename = %q", rec.Filename)
	}
	if rec.Hash != c.Entry(0).ContentHash() {
		t.Errorf("hash = %q, want live hash", rec.Hash)
	}
	if rec.Describe != "a dog on the beach" {
		t.Errorf("describe = %q", rec.Describe)
	}
	if len(rec.Label) != 2 {
		t.Errorf("labels = %v, want deduplicated [dog beach]", rec.Label)
	}

	// Labels flow into the aggregate index.
	got := c.AvailableLabels()
	seen := make(map[string]bool, len(got))
	for _, l := range got {
		seen[l] = true
	}
	if !seen["dog"] || !seen["beach"] {
		t.Errorf("available labels = %v, want dog and beach", got)
	}
}

func TestSetBase64EnabledAppliesToLaterSaves(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "toggle.png"), 11)

	c := openCatalog(t, dir, Options{})

	if err := c.SaveAnnotation(sidecar.PlainText("before")); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}
	rec, err := sidecar.ReadRecord(filepath.Join(dir, "toggle.json"))
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if rec.Base64Data != nil {
		t.Error("payload embedded with embedding disabled")
	}

	c.SetBase64Enabled(true)
	c.SetCompatibilityMode(true)

	if err := c.SaveAnnotation(sidecar.PlainText("after")); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}
	rec, err = sidecar.ReadRecord(filepath.Join(dir, "toggle.json"))
	if err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if rec.Base64Data == nil || *rec.Base64Data == "" {
		t.Error("payload not embedded after enabling")
	}
	if rec.Annotation != "after" {
		t.Errorf("legacy mirror = %q, want compat mirror after enabling", rec.Annotation)
	}
}

func TestSaveAnnotationDefersWithoutHash(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "pending.png")
	writePNG(t, imgPath, 6)

	c := New(Options{})
	c.labelIndex = labels.New(dir, c.codec)
	c.entries = []*Entry{NewEntry(imgPath, "pending.png")}
	c.current = 0

	if err := c.SaveAnnotation(sidecar.PlainText("too early")); err != nil {
		t.Fatalf("SaveAnnotation returned error instead of deferring: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "pending.json")); err == nil {
		t.Error("sidecar written before the hash was available")
	}
	if !c.Entry(0).Annotation().IsEmpty() {
		t.Error("deferred save still mutated the entry annotation")
	}
}

func TestSaveAnnotationNoCurrentEntry(t *testing.T) {
	c := New(Options{})
	if err := c.SaveAnnotation(sidecar.PlainText("nothing selected")); err != nil {
		t.Errorf("SaveAnnotation = %v, want nil no-op", err)
	}
}

func TestSaveAnnotationHonorsSavePath(t *testing.T) {
	dir := t.TempDir()
	saveDir := t.TempDir()
	writePNG(t, filepath.Join(dir, "cat.png"), 8)

	c := openCatalog(t, dir, Options{SavePath: saveDir})

	if err := c.SaveAnnotation(sidecar.PlainText("a cat")); err != nil {
		t.Fatalf("SaveAnnotation failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(saveDir, "cat.json")); err != nil {
		t.Errorf("sidecar not written to save path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cat.json")); err == nil {
		t.Error("sidecar also written next to the image")
	}
}

func TestRenameAllRescans(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "zebra.png"), 4)
	writeSidecarRecord(t, filepath.Join(dir, "zebra.json"), &sidecar.Record{
		Filename: "zebra.png",
		Describe: "stripes",
	})

	finished := make(chan struct{}, 4)
	c := New(Options{Events: Events{
		LoadingFinished: func() { finished <- struct{}{} },
	}})
	if err := c.SetWorkDirectory(dir); err != nil {
		t.Fatalf("SetWorkDirectory failed: %v", err)
	}
	t.Cleanup(c.Close)
	<-finished

	count, err := c.RenameAll()
	if err != nil {
		t.Fatalf("RenameAll failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	<-finished

	entry := c.Entry(0)
	if entry == nil || entry.Filename != "IMG_000000.png" {
		t.Fatalf("entry after rename = %+v", entry)
	}
	if ann := entry.Annotation(); ann.Describe != "stripes" {
		t.Errorf("annotation = %+v, want preserved through rename", ann)
	}
}

func TestRenameAllWithoutDirectory(t *testing.T) {
	c := New(Options{})
	if _, err := c.RenameAll(); err == nil {
		t.Error("expected error with no working directory")
	}
}
