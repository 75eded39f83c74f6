package main

import (
	"github.com/aretw0/crucible/internal/cli"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a Truffle project",
	Long:  `Creates the contracts, test and migrations folders, truffle-config.js and the deploy migration.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		root := cfg.Workspace
		if len(args) > 0 {
			root = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		return cli.InitProject(cmd.Context(), cfg, root, force, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite the scaffold files of an existing project")
}
