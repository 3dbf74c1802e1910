package rename

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func seedFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s failed: %v", name, err)
	}
}

func names(t *testing.T, dir string) map[string]bool {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Name()] = true
	}
	return out
}

func TestAllRenamesImagesAndSidecars(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "beach.jpg", "beach bytes")
	seedFile(t, dir, "beach.json", `{"filename": "beach.jpg", "describe": "sunset"}`)
	seedFile(t, dir, "zebra.png", "zebra bytes")

	count, err := All(dir)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 (2 images + 1 sidecar)", count)
	}

	got := names(t, dir)
	for _, want := range []string{"IMG_000000.jpg", "IMG_000000.json", "IMG_000001.png"} {
		if !got[want] {
			t.Errorf("missing %s after rename, have %v", want, got)
		}
	}
	for _, gone := range []string{"beach.jpg", "beach.json", "zebra.png"} {
		if got[gone] {
			t.Errorf("%s still present after rename", gone)
		}
	}
}

func TestAllRewritesSidecarFilename(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "cat.jpg", "cat bytes")
	seedFile(t, dir, "cat.json",
		`{"filename": "cat.jpg", "describe": "a cat", "custom_field": 42}`)

	if _, err := All(dir); err != nil {
		t.Fatalf("All failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "IMG_000000.json"))
	if err != nil {
		t.Fatalf("renamed sidecar unreadable: %v", err)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("renamed sidecar unparseable: %v", err)
	}
	if rec["filename"] != "IMG_000000.jpg" {
		t.Errorf("filename = %v, want IMG_000000.jpg", rec["filename"])
	}
	if rec["describe"] != "a cat" {
		t.Errorf("describe = %v, want preserved", rec["describe"])
	}
	// Fields this version does not model survive the rewrite.
	if rec["custom_field"] != float64(42) {
		t.Errorf("custom_field = %v, want 42", rec["custom_field"])
	}
}

func TestAllIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "one.jpg", "1")
	seedFile(t, dir, "two.jpg", "2")
	seedFile(t, dir, "one.json", `{"filename": "one.jpg"}`)

	if _, err := All(dir); err != nil {
		t.Fatalf("first All failed: %v", err)
	}
	first := names(t, dir)

	count, err := All(dir)
	if err != nil {
		t.Fatalf("second All failed: %v", err)
	}
	if count != 0 {
		t.Errorf("second run count = %d, want 0", count)
	}
	if second := names(t, dir); len(second) != len(first) {
		t.Errorf("second run changed the directory: %v -> %v", first, second)
	}
}

func TestAllNeverOverwritesExistingTarget(t *testing.T) {
	dir := t.TempDir()
	// "0.jpg" sorts before "IMG_000000.jpg" and would claim its name.
	seedFile(t, dir, "0.jpg", "first")
	seedFile(t, dir, "IMG_000000.jpg", "already numbered")

	if _, err := All(dir); err != nil {
		t.Fatalf("All failed: %v", err)
	}

	// The conflicting source is left in place, not renamed over the
	// existing target.
	data, err := os.ReadFile(filepath.Join(dir, "0.jpg"))
	if err != nil {
		t.Fatalf("conflicting source missing: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("conflicting source content = %q, want untouched", data)
	}
}

func TestAllSkipsUnmatchedSidecars(t *testing.T) {
	dir := t.TempDir()
	seedFile(t, dir, "pic.jpg", "bytes")
	seedFile(t, dir, "orphan.json", `{"filename": "orphan.jpg"}`)

	count, err := All(dir)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	got := names(t, dir)
	if !got["orphan.json"] {
		t.Error("unmatched sidecar was moved")
	}
}

func TestAllOrdersByFilenameAcrossSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "zz-nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	// "apple.jpg" sorts before "berry.jpg" by name even though its full
	// path sorts after the root-level file.
	seedFile(t, filepath.Join(dir, "zz-nested"), "apple.jpg", "a")
	seedFile(t, dir, "berry.jpg", "b")

	if _, err := All(dir); err != nil {
		t.Fatalf("All failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(sub, "IMG_000000.jpg")); err != nil {
		t.Errorf("nested apple.jpg did not take the first sequence number: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "IMG_000001.jpg")); err != nil {
		t.Errorf("root berry.jpg did not take the second sequence number: %v", err)
	}
}

func TestAllMissingDirectory(t *testing.T) {
	if _, err := All(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
