// ABOUTME: CLI commands for viewing and writing the medtrack config file.
// ABOUTME: Shows effective settings after environment overrides, with the API key masked.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/harperreed/medtrack/internal/config"
	"github.com/spf13/cobra"
)

var (
	configReveal bool
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create the config file",
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg.Settings(configReveal), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(faint.Sprint(configFile()))
		fmt.Println(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write a config file with the default settings, merged with any
MEDTRACK_* environment overrides currently set.`,
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile()
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		color.Green("✓ Wrote %s", path)
		return nil
	},
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}

func init() {
	configShowCmd.Flags().BoolVar(&configReveal, "reveal", false, "show the API key")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
