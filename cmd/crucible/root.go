package main

import (
	"fmt"
	"os"

	"github.com/aretw0/crucible/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Crucible stages smart contracts and runs their test suite",
	Long: `Crucible writes contract and test sources into a Truffle project and runs the
verification tool against them, streaming classified output as it happens.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default ./crucible.yaml if present)")
	rootCmd.PersistentFlags().String("dir", "", "Project workspace directory (overrides config)")
	rootCmd.PersistentFlags().String("tool", "", "Verification tool profile (overrides config)")
	rootCmd.PersistentFlags().String("tools-file", "", "Tool profiles file (overrides config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// loadConfig resolves the configuration and applies the persistent flags last.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Workspace = dir
	}
	if tool, _ := cmd.Flags().GetString("tool"); tool != "" {
		cfg.Tool = tool
	}
	if tools, _ := cmd.Flags().GetString("tools-file"); tools != "" {
		cfg.ToolsFile = tools
	}
	return cfg, cfg.Validate()
}

func debugFlag(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}
