package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage docsweep configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/docsweep/config.yaml (if set)
  2. ~/.config/docsweep/config.yaml

Environment variables can override config file settings using the DOCSWEEP_ prefix:
  DOCSWEEP_WORKERS=4
  DOCSWEEP_ENGINE_COMMAND=docling
  DOCSWEEP_PRESSURE_MAX_PERCENT=80`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, the config file, environment and flags.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// cliOnlyKeys are viper keys bound to flags that are not configuration.
var cliOnlyKeys = []string{"no_ledger", "no_history", "no_interactive", "output", "template", "quiet", "verbose"}

// runConfigShow displays the effective configuration as YAML.
func runConfigShow(_ *cobra.Command, _ []string) error {
	if cfgErr != nil {
		printError("Invalid configuration: %v", cfgErr)
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("# Config file: %s\n", configFile)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}

	settings := viper.AllSettings()
	for _, key := range cliOnlyKeys {
		delete(settings, key)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	fmt.Print(string(data))

	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "DOCSWEEP_") {
			overrides = append(overrides, kv)
		}
	}
	if len(overrides) > 0 {
		fmt.Println("\n# Environment overrides:")
		for _, kv := range overrides {
			fmt.Printf("#   %s\n", kv)
		}
	}
	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'docsweep config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
