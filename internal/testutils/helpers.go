package testutils

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// ProjectRoot walks up from the working directory until it finds go.mod.
func ProjectRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)

	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatal("could not find project root (go.mod)")
		}
		root = parent
	}
}

// BuildFakeVerifier compiles tests/fixtures/fakeverifier into a temp binary
// and returns its absolute path.
func BuildFakeVerifier(t *testing.T) string {
	t.Helper()

	source := filepath.Join(ProjectRoot(t), "tests", "fixtures", "fakeverifier")

	exeName := "fakeverifier"
	if runtime.GOOS == "windows" {
		exeName += ".exe"
	}
	dest := filepath.Join(t.TempDir(), exeName)

	cmd := exec.Command("go", "build", "-o", dest, ".")
	cmd.Dir = source
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build fakeverifier: %s", string(out))

	return dest
}

// TempDir returns an absolute temporary directory.
func TempDir(t *testing.T) string {
	t.Helper()
	abs, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "failed to get absolute path for temp dir")
	return abs
}
