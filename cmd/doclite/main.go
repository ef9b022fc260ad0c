// Command doclite is a CLI over an embedded doclite store, useful for
// ad-hoc inspection and scripting without writing Go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/doclite"
)

var (
	// Version information (set via ldflags during build).
	Version = "dev"
	Commit  = "unknown"
)

var (
	dataDir    string
	logLevel   string
	logJSON    bool
	configFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "doclite",
	Short:   "doclite - an embedded schemaless document store",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("doclite version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./doclite-data", "Store directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (maxBytes, logLevel, logJSON); when set it replaces --log-level and --log-json")

	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(replaceCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func openHandle() (*doclite.Handle, error) {
	cfg := doclite.Config{LogLevel: logLevel, LogJSON: logJSON}
	if configFile != "" {
		fileCfg, err := doclite.LoadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	return doclite.Open(dataDir, cfg)
}
