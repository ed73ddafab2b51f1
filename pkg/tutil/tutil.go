package tutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// IsIntegrationTest is true when TIERSTORE_TEST=integration. Integration tests
// run against the directories named by TIERSTORE_TEST_MAIN_DIR and
// TIERSTORE_TEST_ARCHIVE_DIR, usually a network filesystem.
func IsIntegrationTest() bool {
	testType := os.Getenv("TIERSTORE_TEST")
	return strings.ToLower(testType) == "integration"
}

// WriteFile creates path, and any missing parents, holding size bytes.
func WriteFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

// SetMtime sets the access and modification time of path.
func SetMtime(t *testing.T, path string, when time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, when, when))
}

// Exists reports whether path exists, failing the test on any other error.
func Exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false
	}

	require.NoError(t, err)
	return true
}
