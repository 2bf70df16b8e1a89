package forge

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
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestScanOutputs_FiltersBySuffix(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "stage1", "a.ply"))
	touch(t, filepath.Join(root, "stage1", "a.mp4"))
	touch(t, filepath.Join(root, "stage1", "a.glb"))
	touch(t, filepath.Join(root, "stage1", "notes.txt"))
	touch(t, filepath.Join(root, "stage2", "b.ply"))
	touch(t, filepath.Join(root, "stage2", "b.glb"))
	touch(t, filepath.Join(root, "stage2", "b.mp4"))

	files := ScanOutputs(root, DefaultScanRules)

	assert.Equal(t, []ScannedFile{
		{Path: filepath.Join(root, "stage1", "a.mp4"), Source: "stage1"},
		{Path: filepath.Join(root, "stage1", "a.ply"), Source: "stage1"},
		{Path: filepath.Join(root, "stage2", "b.glb"), Source: "stage2"},
		{Path: filepath.Join(root, "stage2", "b.ply"), Source: "stage2"},
	}, files)
}

func TestScanOutputs_MissingDirectories(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "stage2", "only.glb"))

	files := ScanOutputs(root, DefaultScanRules)

	require.Len(t, files, 1)
	assert.Equal(t, "stage2", files[0].Source)

	assert.Empty(t, ScanOutputs(filepath.Join(root, "missing"), DefaultScanRules))
}

func TestScanOutputs_DirectoryMatchingSuffix(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "stage1", "weird.ply"), 0o755))

	files := ScanOutputs(root, DefaultScanRules)

	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(root, "stage1", "weird.ply"), files[0].Path)
}
