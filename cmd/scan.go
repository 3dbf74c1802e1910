package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labelflow/internal/catalog"
	"labelflow/internal/logging"
	"labelflow/internal/startup"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	var (
		watch       bool
		metricsAddr string
		noBase64    bool
		savePath    string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the working directory, hash images, and reconcile sidecars",
		Long: `Scan walks the working directory for images and annotation sidecars,
recovers images whose bytes are embedded in orphaned sidecars, computes
content hashes in the background, and repairs sidecars whose stored hash
no longer matches the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()

			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if noBase64 {
				config.EnableBase64 = false
			}
			if savePath != "" {
				config.SavePath = savePath
			}
			if metricsAddr != "" {
				config.MetricsAddr = metricsAddr
			}
			startup.LogStartup(config, startTime)

			if config.MetricsAddr != "" {
				go serveMetrics(config.MetricsAddr)
			}

			// LoadingFinished fires once per hash pass, and watch-mode
			// rescans run further passes; a non-blocking send keeps later
			// completions from panicking a closed channel.
			done := make(chan struct{}, 1)
			cat := catalog.New(catalog.Options{
				EnableBase64:  config.EnableBase64,
				MaxEmbedBytes: config.MaxEmbedBytes,
				Compatibility: config.Compatibility,
				SavePath:      config.SavePath,
				Events: catalog.Events{
					Progress: func(current, total int, label string) {
						logging.Debug("progress %d/%d: %s", current, total, label)
					},
					LoadingFinished: func() {
						select {
						case done <- struct{}{}:
						default:
						}
					},
				},
			})
			defer cat.Close()

			if err := cat.SetWorkDirectory(config.WorkDir); err != nil {
				return err
			}
			<-done

			mode, detected := cat.FindFirstUnlabeled()
			fmt.Printf("scanned %d images in %v\n", cat.Len(), time.Since(startTime).Round(time.Millisecond))
			fmt.Printf("first unannotated entry: %d\n", cat.CurrentIndex())
			if detected {
				fmt.Printf("detected annotation mode: %s\n", mode)
			}
			fmt.Printf("available labels: %d\n", len(cat.AvailableLabels()))

			if watch {
				if err := cat.Watch(); err != nil {
					return err
				}
				logging.Info("watching for changes, press Ctrl+C to stop")
				waitForInterrupt()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and rescan on directory changes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&noBase64, "no-base64", false, "disable base64 embedding in sidecars")
	cmd.Flags().StringVar(&savePath, "save-path", "", "write sidecars to this directory instead of next to images")

	return cmd
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Error("metrics server failed: %v", err)
	}
}

func waitForInterrupt() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logging.Info("shutting down")
}
