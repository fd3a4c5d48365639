// Package testutil provides shared test helpers used across integration
// and unit test packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory until a go.mod is found. It fails
// the test if no module root exists above the working directory.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		require.NotEqual(t, dir, parent, "go.mod not found above the working directory")
		dir = parent
	}
}

// Fixture returns the absolute path of a file under fixtures/.
func Fixture(t *testing.T, parts ...string) string {
	t.Helper()
	return filepath.Join(append([]string{RepoRoot(t), "fixtures"}, parts...)...)
}

// FileURI turns an absolute path into a file:// URI.
func FileURI(path string) string {
	slashed := filepath.ToSlash(path)
	if len(slashed) > 0 && slashed[0] != '/' {
		slashed = "/" + slashed
	}
	return "file://" + slashed
}

// ReadFixture returns the content of a file under fixtures/.
func ReadFixture(t *testing.T, parts ...string) string {
	t.Helper()
	data, err := os.ReadFile(Fixture(t, parts...))
	require.NoError(t, err)
	return string(data)
}
