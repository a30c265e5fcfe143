package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
	"github.com/fluxbase-eu/funcpack/internal/config"
	"github.com/fluxbase-eu/funcpack/internal/discovery"
)

// workspace is the discovered state of a functions directory
type workspace struct {
	dir      string
	files    []discovery.FunctionFile
	project  bundling.ProjectMetadata
	fns      []bundling.FunctionDescriptor
	failures map[string]error
	bundler  bundling.BundlerOverride
}

// functionsDir returns the directory argument, or the configured one
func functionsDir(fc config.FunctionsConfig, args []string) (string, error) {
	dir := fc.Directory
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve functions directory: %w", err)
	}
	return abs, nil
}

// discover lists and describes the functions in dir. Functions whose
// settings are invalid are kept as failures rather than aborting.
func discover(fc config.FunctionsConfig, dir string) (*workspace, error) {
	files, err := discovery.ListFunctionFiles(dir)
	if err != nil {
		return nil, err
	}

	project, err := discovery.LoadProject(dir, fc.ModuleFormat)
	if err != nil {
		return nil, err
	}

	bundler, err := bundling.ParseBundlerOverride(fc.Bundler)
	if err != nil {
		return nil, err
	}

	fns, failures := discovery.DescribeAll(files, fc.Defaults(), fc.OverrideSettings())

	log.Debug().
		Str("dir", dir).
		Int("functions", len(files)).
		Int("invalid", len(failures)).
		Str("module_format", string(project.ModuleFormat)).
		Msg("Discovered functions")

	return &workspace{
		dir:      dir,
		files:    files,
		project:  project,
		fns:      fns,
		failures: failures,
		bundler:  bundler,
	}, nil
}

// failedResult is the result of a function that never reached the pipeline
func (w *workspace) failedResult(file discovery.FunctionFile) bundling.FunctionResult {
	return bundling.FunctionResult{
		Function: bundling.FunctionDescriptor{
			Name:    file.Name,
			Path:    file.Path,
			Runtime: bundling.RuntimeJavaScript,
		},
		Decision: bundling.Decision{Strategy: bundling.StrategyUnselected},
		Err:      w.failures[file.Name],
		State:    bundling.StateFailed,
	}
}

// merge returns results for every discovered file in directory order,
// combining pipeline results with discovery failures
func (w *workspace) merge(results []bundling.FunctionResult) []bundling.FunctionResult {
	byName := make(map[string]bundling.FunctionResult, len(results))
	for _, res := range results {
		byName[res.Function.Name] = res
	}

	merged := make([]bundling.FunctionResult, 0, len(w.files))
	for _, file := range w.files {
		if res, ok := byName[file.Name]; ok {
			merged = append(merged, res)
			continue
		}
		if _, ok := w.failures[file.Name]; ok {
			merged = append(merged, w.failedResult(file))
		}
	}
	return merged
}
