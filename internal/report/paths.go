package report

import (
	"path/filepath"
	"strings"
)

// RelPath shows path relative to baseDir when it lies inside it, and
// unchanged otherwise
func RelPath(baseDir, path string) string {
	if baseDir == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
