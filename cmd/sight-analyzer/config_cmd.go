package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/menta2k/sight-analyzer/internal/config"
	"github.com/menta2k/sight-analyzer/internal/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := globals.ConfigPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if utils.FileExists(path) && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		// secrets come from the environment, not the file
		out := *cfg
		out.Voice.DeepgramAPIKey = ""
		out.Storage.RedisPassword = ""
		if err := out.SaveToFile(path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := *cfg
		if out.Voice.DeepgramAPIKey != "" {
			out.Voice.DeepgramAPIKey = "***"
		}
		if out.Storage.RedisPassword != "" {
			out.Storage.RedisPassword = "***"
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
