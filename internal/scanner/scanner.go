// Package scanner enumerates candidate log files from one or more
// filesystem roots, applying include/exclude globs and grouping
// rotated siblings into families.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
	"github.com/standardbeagle/logsearch-mcp/pkg/pathutil"
)

// DefaultIncludeGlobs is used when a query supplies no include globs.
var DefaultIncludeGlobs = []string{"**/*.log", "**/*.log.gz", "**/*.gz"}

var (
	gzSuffix  = regexp.MustCompile(`\.gz$`)
	rotSuffix = regexp.MustCompile(`\.\d+$`)
)

// Scanner lists files under a root according to a ScanConfig.
type Scanner struct{}

// New creates a Scanner. It carries no state; every call is
// independent.
func New() *Scanner {
	return &Scanner{}
}

// List enumerates file descriptors for cfg. A glob scan returns them in
// canonical order (family, then rotation index, then path); an explicit
// file list is returned in caller order, unsorted. Per-path failures
// are appended to failed and do not abort the scan.
func (s *Scanner) List(ctx context.Context, cfg types.ScanConfig) ([]types.FileDescriptor, []types.FailedFile, error) {
	if len(cfg.FilePaths) > 0 {
		return s.listExplicit(cfg.FilePaths)
	}
	return s.listGlob(ctx, cfg)
}

func (s *Scanner) listExplicit(paths []string) ([]types.FileDescriptor, []types.FailedFile, error) {
	var descriptors []types.FileDescriptor
	var failed []types.FailedFile

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			failed = append(failed, types.FailedFile{Path: p, Cause: err.Error()})
			continue
		}
		if info.IsDir() {
			failed = append(failed, types.FailedFile{Path: p, Cause: "path is a directory"})
			continue
		}
		descriptors = append(descriptors, descriptorFor(p, info))
	}
	return descriptors, failed, nil
}

func (s *Scanner) listGlob(ctx context.Context, cfg types.ScanConfig) ([]types.FileDescriptor, []types.FailedFile, error) {
	includes := cfg.IncludeGlobs
	if len(includes) == 0 {
		includes = DefaultIncludeGlobs
	}
	excludes := cfg.ExcludeGlobs

	root := cfg.Root
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}

	var descriptors []types.FileDescriptor
	var failed []types.FailedFile
	visitedDirs := make(map[string]bool)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			failed = append(failed, types.FailedFile{Path: path, Cause: err.Error()})
			return nil
		}

		resolved, ok := resolveSymlink(path, d, absRoot, visitedDirs)
		if !ok {
			if !d.IsDir() {
				failed = append(failed, types.FailedFile{Path: path, Cause: "file_denied: symlink escapes root"})
			}
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			relPath = path
		}
		normalized := pathutil.ToSlash(relPath)

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if matchesAny(excludes, normalized) || matchesAny(excludes, normalized+"/") {
				return fs.SkipDir
			}
			return nil
		}

		if matchesAny(excludes, normalized) {
			return nil
		}
		if !matchesAny(includes, normalized) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			failed = append(failed, types.FailedFile{Path: resolved, Cause: infoErr.Error()})
			return nil
		}

		descriptors = append(descriptors, descriptorFor(resolved, info))
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		return descriptors, failed, walkErr
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return canonicalLess(descriptors[i], descriptors[j])
	})
	return descriptors, failed, nil
}

// canonicalLess orders descriptors lexicographically by family (so
// unrelated files keep a stable, deterministic scan order), and
// within a family by rotation index — not
// path — so a family's siblings stay contiguous even when rotation
// suffixes have mismatched digit widths (app.log.2 vs app.log.10).
func canonicalLess(a, b types.FileDescriptor) bool {
	if a.FamilyID != b.FamilyID {
		return a.FamilyID < b.FamilyID
	}
	ra, rb := RotationIndex(a.Path), RotationIndex(b.Path)
	if ra != rb {
		return ra < rb
	}
	return a.Path < b.Path
}

// resolveSymlink follows a symlink to its target, dropping it (and
// reporting ok=false) when the target escapes root, and guarding
// against directory symlink cycles via visitedDirs keyed on the
// resolved path.
func resolveSymlink(path string, d fs.DirEntry, root string, visitedDirs map[string]bool) (string, bool) {
	if d.Type()&fs.ModeSymlink == 0 {
		if d.IsDir() {
			if visitedDirs[path] {
				return path, false
			}
			visitedDirs[path] = true
		}
		return path, true
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, false
	}
	relToRoot, err := filepath.Rel(root, resolved)
	if err != nil || strings.HasPrefix(relToRoot, "..") {
		return path, false
	}
	if visitedDirs[resolved] {
		return path, false
	}
	info, err := os.Stat(resolved)
	if err == nil && info.IsDir() {
		visitedDirs[resolved] = true
	}
	return resolved, true
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		ok, err := doublestar.Match(g, path)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func descriptorFor(path string, info fs.FileInfo) types.FileDescriptor {
	compression := types.CompressionNone
	if strings.HasSuffix(path, ".gz") {
		compression = types.CompressionGzip
	}
	return types.FileDescriptor{
		Path:        pathutil.ToSlash(path),
		SizeBytes:   info.Size(),
		Compression: compression,
		Encoding:    types.EncodingUnknown,
		FamilyID:    FamilyID(path),
		ModTime:     info.ModTime(),
	}
}

// FamilyID groups rotated siblings by trimming a trailing rotation
// suffix: "app.log.2.gz" and "app.log.1" and "app.log" all produce
// "app.log". Rotation siblings within a family are ordered by the
// family's rotation index, not mtime, since rotation index is
// supplied by the rotator itself and is
// stable across host clock skew.
func FamilyID(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = gzSuffix.ReplaceAllString(base, "")
	base = rotSuffix.ReplaceAllString(base, "")
	if dir == "." {
		return base
	}
	return pathutil.ToSlash(filepath.Join(dir, base))
}

// RotationIndex extracts the numeric rotation suffix from path, or -1
// if path carries none (the live, unrotated file).
func RotationIndex(path string) int {
	base := filepath.Base(path)
	base = gzSuffix.ReplaceAllString(base, "")
	m := rotSuffix.FindString(base)
	if m == "" {
		return -1
	}
	n := 0
	for _, r := range m[1:] {
		n = n*10 + int(r-'0')
	}
	return n
}
