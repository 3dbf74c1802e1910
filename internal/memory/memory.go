package memory

import (
	"bufio"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"labelflow/internal/logging"
)

const (
	// DefaultLoadBudget is the memory budget for eagerly loaded pixel data
	// when no explicit limit is configured.
	DefaultLoadBudget = 1 << 30 // 1 GiB

	// DefaultBatchSize is the number of entries loaded eagerly when the
	// budget allows it.
	DefaultBatchSize = 100

	// MinBatchSize is the floor for the computed batch size.
	MinBatchSize = 20

	// EagerThreshold is the catalog size below which all entries are
	// loaded eagerly.
	EagerThreshold = 100

	gib = 1 << 30
	mib = 1 << 20
)

// Config holds memory sizing configuration for the catalog.
type Config struct {
	// LoadBudgetBytes caps the estimated memory used by an eagerly loaded
	// batch (0 = use GOMEMLIMIT if set, else DefaultLoadBudget).
	LoadBudgetBytes int64

	// EmbedCeilingBytes caps the file size eligible for base64 embedding
	// in sidecars (0 = derive from total system memory).
	EmbedCeilingBytes int64
}

// DefaultConfig returns sensible defaults for memory sizing.
func DefaultConfig() Config {
	return Config{}
}

// LoadBudget returns the effective memory budget for eager loading.
func (c Config) LoadBudget() int64 {
	if c.LoadBudgetBytes > 0 {
		return c.LoadBudgetBytes
	}

	if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
		logging.Debug("Memory sizing using GOMEMLIMIT: %d bytes (%.1f MB)",
			goMemLimit, float64(goMemLimit)/float64(mib))
		return goMemLimit
	}

	return DefaultLoadBudget
}

// BatchSize computes the number of entries to load eagerly.
//
// Catalogs smaller than EagerThreshold load everything. Larger catalogs
// derive a batch size from the average file size of a sampled prefix so
// that batchSize * avgSize stays under the load budget, clamped to
// [MinBatchSize, DefaultBatchSize].
func (c Config) BatchSize(total int, avgFileSize int64) int {
	if total < EagerThreshold {
		return total
	}

	if avgFileSize <= 0 {
		return DefaultBatchSize
	}

	budget := c.LoadBudget()
	estimated := avgFileSize * DefaultBatchSize
	if estimated <= budget {
		return DefaultBatchSize
	}

	size := int(budget / avgFileSize)
	if size < MinBatchSize {
		size = MinBatchSize
	}
	return size
}

// EmbedCeiling returns the maximum file size eligible for base64 embedding.
//
// The ceiling is tiered on total system memory so low-memory machines
// never buffer large encodings: >=16 GiB gets 20 MiB, >=8 GiB gets 15 MiB,
// >=4 GiB gets 10 MiB, anything smaller 5 MiB. When the total cannot be
// determined the ceiling falls back to 10 MiB.
func (c Config) EmbedCeiling() int64 {
	if c.EmbedCeilingBytes > 0 {
		return c.EmbedCeilingBytes
	}

	total := totalSystemMemory()
	switch {
	case total == 0:
		return 10 * mib
	case total >= 16*gib:
		return 20 * mib
	case total >= 8*gib:
		return 15 * mib
	case total >= 4*gib:
		return 10 * mib
	default:
		return 5 * mib
	}
}

// totalSystemMemory reads the machine's total memory from /proc/meminfo.
// Returns 0 when it cannot be determined.
func totalSystemMemory() int64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logging.Debug("failed to close /proc/meminfo: %v", closeErr)
		}
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}

	return 0
}
