// Package pathutil provides path normalisation shared by the scanner
// and the family-grouping logic.
//
// The log search core scans with absolute, OS-native paths internally
// but needs forward-slash paths for glob matching and for anything
// that crosses the wire, so output is consistently slash-form
// regardless of host OS conventions.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToSlash normalises path separators to forward slashes so doublestar
// globs behave identically on Windows and POSIX hosts.
func ToSlash(path string) string {
	return filepath.ToSlash(path)
}

// ToRelative converts an absolute path to one relative to rootDir.
// Falls back to the original path if conversion fails, the path is
// already relative, or the path lies outside rootDir.
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}
	return ToSlash(relPath)
}
