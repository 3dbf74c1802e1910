package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scanner metrics
var (
	ScannerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_scanner_operations_total",
			Help: "Total number of directory scan operations",
		},
		[]string{"operation", "status"},
	)

	ScannerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labelflow_scanner_operation_duration_seconds",
			Help:    "Directory scan operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ScannerFilesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_scanner_files_discovered_total",
			Help: "Total number of files discovered during scans",
		},
		[]string{"kind"}, // "image", "sidecar"
	)

	ScannerImagesRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labelflow_scanner_images_recovered_total",
			Help: "Total number of images restored from sidecar base64 payloads",
		},
	)

	ScannerRecoveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labelflow_scanner_recovery_failures_total",
			Help: "Total number of failed image recovery attempts",
		},
	)

	ScannerWatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_scanner_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"type"},
	)

	ScannerWatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labelflow_scanner_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)
)

// Hashing metrics
var (
	HashOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_hash_operations_total",
			Help: "Total number of content hash computations",
		},
		[]string{"status"},
	)

	HashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labelflow_hash_duration_seconds",
			Help:    "Content hash computation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	HashWorkerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labelflow_hash_worker_running",
			Help: "Whether the background hash worker is currently running (1 or 0)",
		},
	)

	HashWorkerItemsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labelflow_hash_worker_items_processed_total",
			Help: "Total number of catalog entries processed by the hash worker",
		},
	)
)

// Sidecar metrics
var (
	SidecarReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_sidecar_reads_total",
			Help: "Total number of sidecar file reads",
		},
		[]string{"status"},
	)

	SidecarWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_sidecar_writes_total",
			Help: "Total number of sidecar file writes",
		},
		[]string{"status"},
	)

	SidecarRepairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labelflow_sidecar_repairs_total",
			Help: "Total number of sidecar hash-consistency repairs",
		},
	)

	SidecarBase64Skipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "labelflow_sidecar_base64_skipped_total",
			Help: "Total number of base64 embeddings skipped due to the size ceiling",
		},
	)
)

// Catalog metrics
var (
	CatalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labelflow_catalog_entries",
			Help: "Number of entries in the image catalog",
		},
	)

	CatalogBatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labelflow_catalog_batch_size",
			Help: "Current batch size used for eager image loading",
		},
	)

	CatalogImagesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labelflow_catalog_images_loaded",
			Help: "Number of catalog entries with pixel data resident in memory",
		},
	)

	CatalogAnnotationSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_catalog_annotation_saves_total",
			Help: "Total number of annotation save operations",
		},
		[]string{"status"}, // "success", "deferred", "error"
	)
)

// Label index metrics
var (
	LabelIndexSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labelflow_label_index_size",
			Help: "Number of unique labels in the label index",
		},
	)

	LabelCacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_label_cache_writes_total",
			Help: "Total number of label cache file writes",
		},
		[]string{"status"},
	)
)

// Renamer metrics
var (
	RenameOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelflow_rename_operations_total",
			Help: "Total number of file renames performed by the batch renamer",
		},
		[]string{"kind", "status"}, // kind: "image", "sidecar"
	)

	RenameBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "labelflow_rename_batch_duration_seconds",
			Help:    "Batch rename duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
