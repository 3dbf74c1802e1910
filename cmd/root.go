package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the labelflow command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labelflow",
		Short: "Image annotation sidecar tool",
		Long: `Labelflow manages per-image annotation sidecars: it scans a directory
of images, hashes their content, reconciles annotations stored in JSON
sidecar files (including a legacy format and base64-embedded recovery),
and can bulk-rename image/sidecar pairs.

This CLI is a thin shell over the annotation core; a GUI frontend drives
the same library in the desktop application.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringP("dir", "d", "", "working directory (default $LABELFLOW_DIR)")
	cmd.PersistentFlags().Bool("compat", false, "enable legacy V0.0.2 sidecar compatibility")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newLabelsCmd())

	return cmd
}
