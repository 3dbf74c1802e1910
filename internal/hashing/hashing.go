package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"labelflow/internal/fsutil"
	"labelflow/internal/logging"
	"labelflow/internal/metrics"
)

// chunkSize is the read buffer size used when streaming file contents.
// Reads are chunked so arbitrarily large files never need to be resident
// in memory at once.
const chunkSize = 8 * 1024

// HashFile computes the SHA-256 hash of the file at path, returned as a
// lowercase 64-character hex string. The file is streamed in fixed-size
// chunks. An unreadable file yields an empty hash and an error; callers
// are expected to degrade rather than abort.
func HashFile(path string) (string, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		metrics.HashOperationsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Warn("failed to close %s after hashing: %v", path, closeErr)
		}
	}()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		metrics.HashOperationsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to read %s for hashing: %w", path, err)
	}

	metrics.HashOperationsTotal.WithLabelValues("success").Inc()
	metrics.HashDuration.Observe(time.Since(start).Seconds())

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileSize returns the size of the file at path in bytes, or 0 if the
// file cannot be stat'd. Transient stat errors (stale NFS handles,
// interrupted syscalls) are retried before giving up.
func FileSize(path string) int64 {
	info, err := fsutil.StatWithRetry(path, fsutil.DefaultRetryConfig())
	if err != nil {
		return 0
	}
	return info.Size()
}
