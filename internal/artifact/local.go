// Package artifact persists the code emitted for each function.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

// Artifact is one written function output
type Artifact struct {
	Function string `json:"function" yaml:"function"`
	Path     string `json:"path" yaml:"path"`
	MapPath  string `json:"map_path,omitempty" yaml:"map_path,omitempty"`
	Size     int64  `json:"size" yaml:"size"`
	Format   string `json:"format" yaml:"format"`
	Strategy string `json:"strategy" yaml:"strategy"`
}

// Extension returns the output file extension for a module format
func Extension(format bundling.ModuleFormat) string {
	return bundling.OutputExtension(format)
}

// LocalStore writes artifacts to a directory
type LocalStore struct {
	dir string
}

// NewLocalStore creates the output directory if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the output directory
func (s *LocalStore) Dir() string {
	return s.dir
}

// Write persists a successful result. Failed results are rejected.
func (s *LocalStore) Write(result bundling.FunctionResult) (*Artifact, error) {
	if !result.Succeeded() || result.Output == nil {
		return nil, fmt.Errorf("function %s has no output to write", result.Function.Name)
	}

	name := result.Function.Name + Extension(result.Format)
	codePath := filepath.Join(s.dir, name)
	code := result.Output.Code

	art := &Artifact{
		Function: result.Function.Name,
		Path:     codePath,
		Format:   string(result.Format),
		Strategy: string(result.Decision.Strategy),
	}

	if result.Output.HasSourceMap() {
		mapName := name + ".map"
		art.MapPath = filepath.Join(s.dir, mapName)
		if err := writeFileAtomic(art.MapPath, []byte(result.Output.SourceMap)); err != nil {
			return nil, err
		}
		code += "\n//# sourceMappingURL=" + mapName + "\n"
	}

	if err := writeFileAtomic(codePath, []byte(code)); err != nil {
		return nil, err
	}
	art.Size = int64(len(code))

	// A format change or a dropped source map leaves outputs of the previous build
	if err := s.prune(art.Function, art.Path, art.MapPath); err != nil {
		return nil, err
	}

	log.Debug().
		Str("function", art.Function).
		Str("path", art.Path).
		Int64("size", art.Size).
		Msg("Artifact written")

	return art, nil
}

// WriteAll writes every successful result of a report in order. Outputs left
// by an earlier build of a function that now fails are removed.
func (s *LocalStore) WriteAll(report *bundling.BuildReport) ([]Artifact, error) {
	var artifacts []Artifact
	written := make(map[string]bool, len(report.Results))
	for _, res := range report.Results {
		if !res.Succeeded() {
			continue
		}
		art, err := s.Write(res)
		if err != nil {
			return artifacts, err
		}
		written[art.Function] = true
		artifacts = append(artifacts, *art)
	}

	for _, res := range report.Results {
		if res.Succeeded() || written[res.Function.Name] {
			continue
		}
		if err := s.Remove(res.Function.Name); err != nil {
			return artifacts, err
		}
	}
	return artifacts, nil
}

// Remove deletes every output previously written for a function
func (s *LocalStore) Remove(name string) error {
	return s.prune(name)
}

// prune deletes the outputs of a function other than keep
func (s *LocalStore) prune(name string, keep ...string) error {
	if name == "" {
		return nil
	}
	for _, ext := range []string{".js", ".mjs"} {
		code := filepath.Join(s.dir, name+ext)
		for _, path := range []string{code, code + ".map"} {
			if slices.Contains(keep, path) {
				continue
			}
			if err := os.Remove(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return fmt.Errorf("failed to remove stale artifact %s: %w", path, err)
			}
			log.Debug().Str("function", name).Str("path", path).Msg("Stale artifact removed")
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
