package main

import (
	"fmt"
	"os"

	"github.com/aretw0/crucible/pkg/scaffold"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate contract sources",
}

var erc20Cmd = &cobra.Command{
	Use:   "erc20",
	Short: "Generate an ERC20 token contract",
	Long: `Writes a Solidity ERC20 token with 18 decimals. The contract name is the token
name without spaces followed by "Token". Stage it with 'crucible run --contract'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		symbol, _ := cmd.Flags().GetString("symbol")
		supply, _ := cmd.Flags().GetString("supply")
		out, _ := cmd.Flags().GetString("out")

		token := scaffold.Token{Name: name, Symbol: symbol, Supply: supply}
		src, err := scaffold.GenerateERC20(token)
		if err != nil {
			return err
		}

		if out == "" || out == "-" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), src)
			return err
		}
		if err := os.WriteFile(out, []byte(src), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Generated %s in %s\n", token.ContractName(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.AddCommand(erc20Cmd)

	erc20Cmd.Flags().String("name", "", "Token name")
	erc20Cmd.Flags().String("symbol", "", "Token symbol")
	erc20Cmd.Flags().String("supply", "", "Initial supply (whole tokens)")
	erc20Cmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
}
