package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "crucible version "+strings.TrimSpace(crucible.Version)+"\n", out)
}

func TestGenerateERC20(t *testing.T) {
	out, err := execute(t, "generate", "erc20", "--name", "My Coin", "--symbol", "MYC", "--supply", "1000", "--out", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "contract MyCoinToken")
}

func TestGenerateERC20_InvalidSupply(t *testing.T) {
	_, err := execute(t, "generate", "erc20", "--name", "Coin", "--symbol", "C", "--supply", "12x", "--out", "")
	require.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	root := filepath.Join(t.TempDir(), "proj")

	_, err := execute(t, "init", root)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "truffle-config.js"))

	_, err = execute(t, "init", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, "init", root, "--force")
	require.NoError(t, err)
}
