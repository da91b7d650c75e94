package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanner_DefaultGlobsAndOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.log"), "a")
	writeFile(t, filepath.Join(root, "app.log.1"), "b")
	writeFile(t, filepath.Join(root, "app.log.2.gz"), "c")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")

	s := New()
	descs, failed, err := s.List(context.Background(), types.ScanConfig{Root: root})
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Len(t, descs, 3)

	for i := 1; i < len(descs); i++ {
		require.LessOrEqual(t, descs[i-1].Path, descs[i].Path, "descriptors must be in lexicographic order")
	}

	for _, d := range descs {
		require.Equal(t, FamilyID(filepath.Join(root, "app.log")), d.FamilyID)
	}
}

func TestScanner_CompressionDetection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.log.gz"), "x")

	s := New()
	descs, _, err := s.List(context.Background(), types.ScanConfig{Root: root})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Equal(t, types.CompressionGzip, descs[0].Compression)
}

func TestScanner_ExcludeAppliedAfterInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.log"), "x")
	writeFile(t, filepath.Join(root, "vendor", "skip.log"), "y")

	s := New()
	descs, _, err := s.List(context.Background(), types.ScanConfig{
		Root:         root,
		ExcludeGlobs: []string{"vendor/**"},
	})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Contains(t, descs[0].Path, "keep.log")
}

func TestScanner_ExplicitFilePathsBypassGlobbing(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "only.txt")
	writeFile(t, p, "x")

	s := New()
	descs, failed, err := s.List(context.Background(), types.ScanConfig{
		Root:      root,
		FilePaths: []string{p, filepath.Join(root, "missing.log")},
	})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	require.Len(t, failed, 1)
	require.Equal(t, filepath.Join(root, "missing.log"), failed[0].Path)
}

func TestFamilyID(t *testing.T) {
	cases := map[string]string{
		"a/app.log":      "a/app.log",
		"a/app.log.1":    "a/app.log",
		"a/app.log.2.gz": "a/app.log",
		"a/app.log.gz":   "a/app.log",
	}
	for in, want := range cases {
		require.Equal(t, want, FamilyID(in), "input %q", in)
	}
}

func TestRotationIndex(t *testing.T) {
	require.Equal(t, -1, RotationIndex("app.log"))
	require.Equal(t, 1, RotationIndex("app.log.1"))
	require.Equal(t, 2, RotationIndex("app.log.2.gz"))
}
