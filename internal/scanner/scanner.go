package scanner

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"labelflow/internal/fsutil"
	"labelflow/internal/imagetypes"
	"labelflow/internal/logging"
	"labelflow/internal/metrics"
	"labelflow/internal/sidecar"
)

// Result holds the outcome of a directory scan.
type Result struct {
	// Images are the absolute paths of all discovered image files,
	// including any restored from orphaned sidecars.
	Images []string

	// Sidecars are the absolute paths of all per-image annotation files.
	Sidecars []string

	// Recovered marks image paths that were reconstructed from a
	// sidecar's embedded base64 payload rather than found on disk.
	Recovered map[string]bool
}

// Scan walks the directory tree rooted at dir, classifies files into
// images and sidecars, and attempts recovery of images whose bytes are
// missing but embedded in an orphaned sidecar.
//
// Only a missing or unreadable root directory fails the scan; every
// per-file problem is logged and skipped.
func Scan(dir string) (*Result, error) {
	start := time.Now()
	var scanErr error
	defer func() {
		status := "success"
		if scanErr != nil {
			status = "error"
		}
		metrics.ScannerOperationsTotal.WithLabelValues("scan", status).Inc()
		metrics.ScannerOperationDuration.WithLabelValues("scan").Observe(time.Since(start).Seconds())
	}()

	if info, err := fsutil.StatWithRetry(dir, fsutil.DefaultRetryConfig()); err != nil {
		scanErr = fmt.Errorf("working directory unavailable: %w", err)
		return nil, scanErr
	} else if !info.IsDir() {
		scanErr = fmt.Errorf("working directory %s is not a directory", dir)
		return nil, scanErr
	}

	result := &Result{Recovered: make(map[string]bool)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("error accessing %s during scan: %v", path, err)
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
			result.Images = append(result.Images, path)
		case imagetypes.IsSidecarFile(d.Name()):
			result.Sidecars = append(result.Sidecars, path)
		}
		return nil
	})
	if err != nil {
		scanErr = fmt.Errorf("failed to walk %s: %w", dir, err)
		return nil, scanErr
	}

	metrics.ScannerFilesDiscovered.WithLabelValues("image").Add(float64(len(result.Images)))
	metrics.ScannerFilesDiscovered.WithLabelValues("sidecar").Add(float64(len(result.Sidecars)))
	logging.Info("scanned %s: %d images, %d sidecars", dir, len(result.Images), len(result.Sidecars))

	recoverOrphans(result)

	return result, nil
}

// recoverOrphans restores image files for sidecars whose basename has no
// matching image in the discovered set, using the sidecar's embedded
// base64 payload. Failures are logged and skipped; recovery never aborts
// the scan and never overwrites an existing file.
func recoverOrphans(result *Result) {
	existing := make(map[string]bool, len(result.Images))
	for _, path := range result.Images {
		existing[strings.ToLower(imagetypes.BaseName(filepath.Base(path)))] = true
	}

	for _, sidecarPath := range result.Sidecars {
		base := strings.ToLower(imagetypes.BaseName(filepath.Base(sidecarPath)))
		if existing[base] {
			continue
		}

		restored, err := restoreFromSidecar(sidecarPath)
		if err != nil {
			logging.Warn("failed to recover image from %s: %v", sidecarPath, err)
			metrics.ScannerRecoveryFailures.Inc()
			continue
		}
		if restored == "" {
			continue
		}

		logging.Info("recovered image %s from sidecar", filepath.Base(restored))
		metrics.ScannerImagesRecovered.Inc()
		result.Images = append(result.Images, restored)
		result.Recovered[restored] = true
		existing[strings.ToLower(imagetypes.BaseName(filepath.Base(restored)))] = true
	}
}

// restoreFromSidecar writes the sidecar's embedded bytes out as a new
// image file next to the sidecar. Returns the restored path, or "" when
// the sidecar has nothing to restore or the target already exists.
func restoreFromSidecar(sidecarPath string) (string, error) {
	rec, err := sidecar.ReadRecord(sidecarPath)
	if err != nil {
		return "", err
	}

	if rec.Filename == "" || rec.Base64Data == nil || *rec.Base64Data == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(*rec.Base64Data)
	if err != nil {
		return "", fmt.Errorf("undecodable base64 payload: %w", err)
	}

	target := filepath.Join(filepath.Dir(sidecarPath), rec.Filename)

	// O_EXCL: an existing file is never overwritten, even if it appeared
	// between the scan and this write.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", target, err)
	}

	return target, nil
}
