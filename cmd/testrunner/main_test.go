package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o755))
}

func TestCollectTestBinaries_SortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "api", "services", "stripe", "db.test"))
	touch(t, filepath.Join(root, "api", "auth.test"))
	touch(t, filepath.Join(root, "api", "README"))

	bins, err := collectTestBinaries(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "api", "auth.test"),
		filepath.Join(root, "api", "services", "stripe", "db.test"),
	}, bins)
}

func TestPartition(t *testing.T) {
	root := "/tests"
	bins := []string{"/tests/api/auth.test", "/tests/api/services/stripe/db.test"}

	unit, integration, err := partition(root, bins, []string{filepath.FromSlash("api/services/stripe/db")})
	require.NoError(t, err)
	assert.Equal(t, []string{"/tests/api/auth.test"}, unit)
	assert.Equal(t, []string{"/tests/api/services/stripe/db.test"}, integration)

	_, _, err = partition(root, bins, []string{"api/missing"})
	assert.Error(t, err)
}

func TestTestArgs(t *testing.T) {
	assert.Equal(t, []string{"-test.v", "-test.short", "-test.count=1"}, testArgs(true, 1, 0, ""))
	assert.Equal(t, []string{"-test.v", "-test.count=1", "-test.parallel=1", "-test.run", "Integration"},
		testArgs(false, 1, 1, "Integration"))
}

func TestPackageDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api", "auth"), 0o755))

	assert.Equal(t, filepath.Join(root, "api", "auth"), packageDir(filepath.Join(root, "api", "auth.test"), "/app"))
	assert.Equal(t, "/app", packageDir(filepath.Join(root, "api", "db.test"), "/app"))
}
