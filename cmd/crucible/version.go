package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/crucible"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of crucible",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crucible version %s\n", strings.TrimSpace(crucible.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
