package cmd

import (
	"fmt"

	"labelflow/internal/labels"
	"labelflow/internal/sidecar"

	"github.com/spf13/cobra"
)

func newLabelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "List all labels seen across sidecars",
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := loadLabelIndex(cmd)
			if err != nil {
				return err
			}
			for _, label := range ix.All() {
				fmt.Println(label)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <label>...",
		Short: "Add labels to the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := loadLabelIndex(cmd)
			if err != nil {
				return err
			}
			added := ix.AddAll(args)
			fmt.Printf("added %d labels (%d total)\n", added, len(ix.All()))
			return nil
		},
	})

	return cmd
}

func loadLabelIndex(cmd *cobra.Command) (*labels.Index, error) {
	config, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	codec := &sidecar.Codec{Compatibility: config.Compatibility}
	ix := labels.New(config.WorkDir, codec)
	if err := ix.Load(); err != nil {
		return nil, err
	}
	return ix, nil
}
