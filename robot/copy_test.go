package robot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyFileToDir(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := filepath.Join(t.TempDir(), "nested", "out")
	src := filepath.Join(srcDir, "a.edi")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	dst, err := CopyFileToDir(src, dstDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dstDir, "a.edi"), dst)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	// Re-copy overwrites in place.
	require.NoError(t, os.WriteFile(src, []byte("changed"), 0o644))
	_, err = CopyFileToDir(src, dstDir)
	require.NoError(t, err)
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "changed", string(got))

	_, err = CopyFileToDir(src, "")
	require.Error(t, err)
}

func TestCopyFileMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.edi")
	require.Error(t, CopyFile(filepath.Join(t.TempDir(), "missing.edi"), dst))
	require.NoFileExists(t, dst)
}
