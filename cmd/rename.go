package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"labelflow/internal/rename"

	"github.com/spf13/cobra"
)

func newRenameCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Bulk-rename all images and sidecars to the IMG_NNNNNN scheme",
		Long: `Rename assigns every image under the working directory a sequential
IMG_NNNNNN name and rewrites matching sidecars to follow. The operation
is irreversible; existing files are never overwritten.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			if !yes && !confirm(fmt.Sprintf("rename all files under %s? This cannot be undone", config.WorkDir)) {
				fmt.Println("aborted")
				return nil
			}

			count, err := rename.All(config.WorkDir)
			if err != nil {
				return err
			}
			fmt.Printf("renamed %d files\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
