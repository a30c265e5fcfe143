// Package discovery finds functions in a source directory and turns them into
// bundling descriptors.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// SourceExtensions are the entry file extensions recognised as functions, in
// lookup order for directory-based functions
var SourceExtensions = []string{".ts", ".mts", ".cts", ".js", ".mjs", ".cjs"}

// FunctionFile is one function entry point found on disk
type FunctionFile struct {
	Name         string // function name (file stem or directory name)
	Path         string // absolute path of the entry file
	Size         int64
	ModifiedTime int64 // unix seconds
}

// ListFunctionFiles scans functionsDir for functions. Two layouts are
// recognised: a flat file ({name}.ts) and a directory with an index file
// ({name}/index.ts). When both exist the flat file wins. Entries starting with
// "_" or "." are shared code and are skipped.
func ListFunctionFiles(functionsDir string) ([]FunctionFile, error) {
	if _, err := os.Stat(functionsDir); os.IsNotExist(err) {
		log.Debug().Str("dir", functionsDir).Msg("Functions directory does not exist yet")
		return []FunctionFile{}, nil
	}

	entries, err := os.ReadDir(functionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read functions directory: %w", err)
	}

	found := make(map[string]FunctionFile)
	flatEntries := make(map[string]bool)

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}

		var functionName, entryPath string
		flat := false
		if entry.IsDir() {
			functionName = name
			entryPath = findIndexFile(filepath.Join(functionsDir, name))
			if entryPath == "" {
				log.Debug().Str("dir", name).Msg("Skipping directory without an index file")
				continue
			}
		} else {
			ext := filepath.Ext(name)
			if !isSourceExtension(ext) || strings.HasSuffix(name, ".d.ts") {
				log.Debug().Str("file", name).Msg("Skipping non-source file in functions directory")
				continue
			}
			functionName = strings.TrimSuffix(name, ext)
			entryPath = filepath.Join(functionsDir, name)
			flat = true
		}

		if err := ValidateFunctionName(functionName); err != nil {
			log.Warn().
				Str("file", name).
				Err(err).
				Msg("Skipping file with invalid function name")
			continue
		}

		if existing, ok := found[functionName]; ok && (flatEntries[functionName] || !flat) {
			log.Warn().
				Str("function", functionName).
				Str("kept", existing.Path).
				Str("ignored", entryPath).
				Msg("Duplicate function entry point")
			continue
		}

		absPath, err := withinDir(functionsDir, entryPath)
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("Skipping function outside of functions directory")
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil {
			log.Warn().
				Str("file", name).
				Err(err).
				Msg("Failed to get file info")
			continue
		}

		flatEntries[functionName] = flat
		found[functionName] = FunctionFile{
			Name:         functionName,
			Path:         absPath,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Unix(),
		}
	}

	functions := make([]FunctionFile, 0, len(found))
	for _, fn := range found {
		functions = append(functions, fn)
	}
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })

	log.Debug().
		Str("dir", functionsDir).
		Int("count", len(functions)).
		Msg("Scanned functions directory")

	return functions, nil
}

func findIndexFile(dir string) string {
	for _, ext := range SourceExtensions {
		path := filepath.Join(dir, "index"+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func isSourceExtension(ext string) bool {
	for _, e := range SourceExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
