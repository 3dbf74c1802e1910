package cmd

import (
	"fmt"

	"labelflow/internal/startup"

	"github.com/spf13/cobra"
)

// resolveConfig loads the environment configuration and applies
// persistent flag overrides.
func resolveConfig(cmd *cobra.Command) (*startup.Config, error) {
	config, err := startup.LoadConfig()
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		config.WorkDir = dir
	}
	if cmd.Flags().Changed("compat") {
		compat, _ := cmd.Flags().GetBool("compat")
		config.Compatibility = compat
	}

	if config.WorkDir == "" {
		return nil, fmt.Errorf("no working directory: set --dir or LABELFLOW_DIR")
	}

	return config, nil
}
