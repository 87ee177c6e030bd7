package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
)

var (
	cfgFile string

	// appCfg is loaded before every command. cfgErr is kept so commands that
	// can run without a valid config (config path, version) still work.
	appCfg *config.Config
	cfgErr error

	rootCmd = &cobra.Command{
		Use:   "docsweep",
		Short: "Convert documents to Markdown in resource-aware batches",
		Long: `Docsweep converts batches of documents (PDF by default) to Markdown using an
external conversion engine. It sizes its worker pool and engine batches from the
detected hardware and backs off when the system runs short of memory.

Examples:
  docsweep convert report.pdf            # Convert one document
  docsweep batch ~/papers -r             # Convert every PDF under a directory
  docsweep batch . -p "*.docx" -w 2      # Two workers, Word documents
  docsweep watch ~/inbox                 # Convert documents as they arrive
  docsweep info                          # Show the detected hardware and plan
  docsweep history                       # List previous runs`,
		SilenceUsage:      true,
		PersistentPreRunE: initialize,
	}
)

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/docsweep/config.yaml)")
	pf.IntP("workers", "w", 0, "override worker count (0=auto)")
	pf.IntP("batch-size", "b", 0, "override engine batch size (0=auto)")
	pf.Bool("gpu", false, "use a detected accelerator")
	pf.StringP("out-dir", "d", "", "base output directory")
	pf.StringP("pattern", "p", "", "glob for documents in a directory (e.g. *.pdf)")
	pf.BoolP("recursive", "r", false, "search subdirectories")
	pf.Duration("timeout", 0, "per-document time limit (0=none)")
	pf.Bool("skip-existing", false, "skip documents whose output already exists")
	pf.String("min-file-size", "", "skip documents smaller than this (e.g. 1KB)")
	pf.String("engine", "", "conversion engine command")
	pf.String("device", "", "engine device: auto, cpu, cuda, rocm, mps")
	pf.Bool("no-ledger", false, "convert documents even if unchanged since the last run")
	pf.Bool("no-history", false, "do not record this run in history")
	pf.BoolP("no-interactive", "n", false, "disable the TUI, use text output")
	pf.StringP("output", "o", "pretty", "report format: "+formatList())
	pf.String("template", "", "Go template for -o template")
	pf.BoolP("quiet", "q", false, "minimal output")
	pf.BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("workers", pf.Lookup("workers"))
	_ = viper.BindPFlag("batch_size", pf.Lookup("batch-size"))
	_ = viper.BindPFlag("gpu", pf.Lookup("gpu"))
	_ = viper.BindPFlag("output_dir", pf.Lookup("out-dir"))
	_ = viper.BindPFlag("pattern", pf.Lookup("pattern"))
	_ = viper.BindPFlag("recursive", pf.Lookup("recursive"))
	_ = viper.BindPFlag("task_timeout", pf.Lookup("timeout"))
	_ = viper.BindPFlag("skip_existing", pf.Lookup("skip-existing"))
	_ = viper.BindPFlag("min_file_size", pf.Lookup("min-file-size"))
	_ = viper.BindPFlag("engine.command", pf.Lookup("engine"))
	_ = viper.BindPFlag("engine.device", pf.Lookup("device"))
	_ = viper.BindPFlag("no_ledger", pf.Lookup("no-ledger"))
	_ = viper.BindPFlag("no_history", pf.Lookup("no-history"))
	_ = viper.BindPFlag("no_interactive", pf.Lookup("no-interactive"))
	_ = viper.BindPFlag("output", pf.Lookup("output"))
	_ = viper.BindPFlag("template", pf.Lookup("template"))
	_ = viper.BindPFlag("quiet", pf.Lookup("quiet"))
	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
}

// initialize loads the configuration and starts logging. A config error is
// remembered rather than returned; loadedConfig reports it to commands that
// need the configuration.
func initialize(_ *cobra.Command, _ []string) error {
	appCfg, cfgErr = config.LoadFrom(viper.GetViper(), cfgFile)
	return initLogging(false)
}

// loadedConfig returns the configuration loaded by initialize.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	if appCfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return appCfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
