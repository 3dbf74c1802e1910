package rename

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"labelflow/internal/fsutil"
	"labelflow/internal/imagetypes"
	"labelflow/internal/logging"
	"labelflow/internal/metrics"
)

// All renames every image under dir to the IMG_{000000} scheme and
// rewrites matching sidecars to follow, returning the total number of
// files renamed (images plus sidecars).
//
// The operation is irreversible and tolerates partial completion: each
// failed rename is logged and skipped, never rolled back. Existing
// destination files are never overwritten. Running All twice in a row
// renames nothing the second time.
func All(dir string) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RenameBatchDuration.Observe(time.Since(start).Seconds())
	}()

	images, sidecars, err := enumerate(dir)
	if err != nil {
		return 0, err
	}

	renamed := 0
	renameMap := make(map[string]string) // old basename (no ext) -> new basename

	for i, oldPath := range images {
		oldName := filepath.Base(oldPath)
		ext := filepath.Ext(oldName)
		newBase := fmt.Sprintf("IMG_%06d", i)
		newName := newBase + ext
		newPath := filepath.Join(filepath.Dir(oldPath), newName)

		if oldName == newName {
			continue
		}

		if _, err := os.Stat(newPath); err == nil {
			logging.Warn("rename target already exists, skipping: %s", newName)
			metrics.RenameOperationsTotal.WithLabelValues("image", "skipped").Inc()
			continue
		}

		if err := os.Rename(oldPath, newPath); err != nil {
			logging.Error("failed to rename %s: %v", oldName, err)
			metrics.RenameOperationsTotal.WithLabelValues("image", "error").Inc()
			continue
		}

		renameMap[imagetypes.BaseName(oldName)] = newBase
		renamed++
		metrics.RenameOperationsTotal.WithLabelValues("image", "success").Inc()
		logging.Info("renamed image: %s -> %s", oldName, newName)
	}

	renamed += rewriteSidecars(sidecars, renameMap)

	return renamed, nil
}

// enumerate collects image and sidecar paths under dir. Images are
// sorted by base filename (path as the tiebreaker) so the sequence
// numbers follow the visible names even across subdirectories.
func enumerate(dir string) (images, sidecars []string, err error) {
	if info, statErr := os.Stat(dir); statErr != nil {
		return nil, nil, fmt.Errorf("working directory unavailable: %w", statErr)
	} else if !info.IsDir() {
		return nil, nil, fmt.Errorf("working directory %s is not a directory", dir)
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("error accessing %s during rename enumeration: %v", path, err)
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case imagetypes.IsImageFile(d.Name()):
			images = append(images, path)
		case imagetypes.IsSidecarFile(d.Name()):
			sidecars = append(sidecars, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", dir, walkErr)
	}

	sort.Slice(images, func(i, j int) bool {
		a, b := filepath.Base(images[i]), filepath.Base(images[j])
		if a != b {
			return a < b
		}
		return images[i] < images[j]
	})
	sort.Strings(sidecars)
	return images, sidecars, nil
}

// rewriteSidecars moves each sidecar whose basename matched a renamed
// image: the filename field is repaired, the record written under the
// new basename, and the old file deleted. The rewrite goes through the
// generic JSON representation so fields this version does not know about
// survive.
func rewriteSidecars(sidecars []string, renameMap map[string]string) int {
	renamed := 0

	for _, oldPath := range sidecars {
		oldName := filepath.Base(oldPath)
		newBase, ok := renameMap[imagetypes.BaseName(oldName)]
		if !ok {
			continue
		}

		newPath := filepath.Join(filepath.Dir(oldPath), newBase+".json")

		if err := rewriteSidecar(oldPath, newPath, renameMap); err != nil {
			logging.Error("failed to rename sidecar %s: %v", oldName, err)
			metrics.RenameOperationsTotal.WithLabelValues("sidecar", "error").Inc()
			continue
		}

		renamed++
		metrics.RenameOperationsTotal.WithLabelValues("sidecar", "success").Inc()
		logging.Info("renamed sidecar: %s -> %s.json", oldName, newBase)
	}

	return renamed
}

func rewriteSidecar(oldPath, newPath string, renameMap map[string]string) error {
	data, err := os.ReadFile(oldPath)
	if err != nil {
		return fmt.Errorf("failed to read sidecar: %w", err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("failed to parse sidecar: %w", err)
	}

	if filename, ok := record["filename"].(string); ok && filename != "" {
		base := imagetypes.BaseName(filename)
		if newBase, ok := renameMap[base]; ok {
			record["filename"] = newBase + filepath.Ext(filename)
		}
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	out = append(out, '\n')

	if err := fsutil.WriteFileAtomic(newPath, out, 0o644); err != nil {
		return err
	}

	if err := os.Remove(oldPath); err != nil {
		return fmt.Errorf("failed to remove old sidecar: %w", err)
	}

	return nil
}
