package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/wsserial/internal/config"
)

var forceConfig bool

// initConfigCmd writes a config file holding the defaults.
var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a config file with the default settings",
	Long: `Write a config file with the default settings. The format follows the
extension: .yaml and .yml write YAML, anything else JSON. Without a path
wsss_conf.yaml in the current directory is written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultFileNames[0]
		if len(args) == 1 {
			path = args[0]
		}
		return writeDefaultConfig(cmd, path, forceConfig)
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().BoolVar(&forceConfig, "force", false, "Overwrite an existing file")
}

func writeDefaultConfig(cmd *cobra.Command, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
