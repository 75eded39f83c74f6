package main

import (
	"os"

	"github.com/aretw0/crucible/internal/cli"
	"github.com/aretw0/crucible/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stage sources and run the tests once",
	Long: `Opens the project workspace (scaffolding it if needed), stages the given contract
and test sources and runs the verification tool. Without --contract or --test the
SimpleStorage example is staged.

Ctrl+C stops the tests gracefully; press it again to kill the tool.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		contract, _ := cmd.Flags().GetString("contract")
		test, _ := cmd.Flags().GetString("test")
		noColor, _ := cmd.Flags().GetBool("no-color")

		interactive := tui.IsTerminal(os.Stdout)
		run, err := cli.RunSession(cmd.Context(), cli.RunOptions{
			Config:   cfg,
			Contract: contract,
			Test:     test,
			Out:      cmd.OutOrStdout(),
			Color:    interactive && !noColor,
			Banner:   interactive,
			Debug:    debugFlag(cmd),
			Summary:  true,
		})
		if err != nil {
			return err
		}
		if code := cli.ExitCode(run); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("contract", "", "Solidity file to stage as the contract")
	runCmd.Flags().String("test", "", "JavaScript file to stage as the test")
	runCmd.Flags().Bool("no-color", false, "Disable coloured output")
}
