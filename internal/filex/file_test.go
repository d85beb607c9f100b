package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesNested(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "cache.db")

	require.NoError(t, EnsureParentDir(target))

	info, err := os.Stat(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	// idempotent
	require.NoError(t, EnsureParentDir(target))
}

func TestEnsureParentDir_BareFileName(t *testing.T) {
	require.NoError(t, EnsureParentDir("cache.db"))
}

func TestEnsureParentDir_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := EnsureParentDir(filepath.Join(blocker, "cache.db"))
	require.Error(t, err)
}

func TestDefaultStateDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	dir, err := DefaultStateDir()
	require.NoError(t, err)
	require.Equal(t, "praylist", filepath.Base(dir))
}
