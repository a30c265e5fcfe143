package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

// Metafile represents the esbuild metafile JSON structure
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput represents an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport represents an import in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput represents an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib represents the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// AnalysisResult is the size breakdown of one bundled function
type AnalysisResult struct {
	FunctionName    string         `json:"function" yaml:"function"`
	TotalBytes      int            `json:"total_bytes" yaml:"total_bytes"`
	InputFiles      []FileAnalysis `json:"inputs" yaml:"inputs"`
	ExternalImports []string       `json:"externals" yaml:"externals"`
}

// FileAnalysis contains analysis for a single input file
type FileAnalysis struct {
	Path          string  `json:"path" yaml:"path"`
	Bytes         int     `json:"bytes" yaml:"bytes"`
	BytesInOutput int     `json:"bytes_in_output" yaml:"bytes_in_output"`
	Percentage    float64 `json:"percentage" yaml:"percentage"`
	ImportCount   int     `json:"import_count" yaml:"import_count"`
}

// Analyze parses an esbuild metafile. Source map outputs are ignored; the
// first code output is analyzed.
func Analyze(functionName, metafileJSON string) (*AnalysisResult, error) {
	var meta Metafile
	if err := json.Unmarshal([]byte(metafileJSON), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	result := &AnalysisResult{FunctionName: functionName}

	outputNames := make([]string, 0, len(meta.Outputs))
	for name := range meta.Outputs {
		if filepath.Ext(name) != ".map" {
			outputNames = append(outputNames, name)
		}
	}
	sort.Strings(outputNames)
	if len(outputNames) == 0 {
		return result, nil
	}

	output := meta.Outputs[outputNames[0]]
	result.TotalBytes = output.Bytes

	seen := make(map[string]bool)
	for _, imp := range output.Imports {
		if imp.External && !seen[imp.Path] {
			seen[imp.Path] = true
			result.ExternalImports = append(result.ExternalImports, imp.Path)
		}
	}

	for inputPath, contrib := range output.Inputs {
		inputInfo, ok := meta.Inputs[inputPath]
		if !ok {
			continue
		}

		displayPath := inputPath
		if inputPath == output.EntryPoint {
			displayPath = "<entry> " + inputPath
		}

		percentage := 0.0
		if result.TotalBytes > 0 {
			percentage = float64(contrib.BytesInOutput) / float64(result.TotalBytes) * 100
		}

		result.InputFiles = append(result.InputFiles, FileAnalysis{
			Path:          displayPath,
			Bytes:         inputInfo.Bytes,
			BytesInOutput: contrib.BytesInOutput,
			Percentage:    percentage,
			ImportCount:   len(inputInfo.Imports),
		})
	}

	// Largest first, path as tie breaker
	sort.Slice(result.InputFiles, func(i, j int) bool {
		a, b := result.InputFiles[i], result.InputFiles[j]
		if a.BytesInOutput != b.BytesInOutput {
			return a.BytesInOutput > b.BytesInOutput
		}
		return a.Path < b.Path
	})
	sort.Strings(result.ExternalImports)

	return result, nil
}

// AnalyzeReport analyzes every result that carries a metafile
func AnalyzeReport(report *bundling.BuildReport) ([]*AnalysisResult, error) {
	var results []*AnalysisResult
	for _, res := range report.Results {
		if res.Output == nil || res.Output.Metafile == "" {
			continue
		}
		analysis, err := Analyze(res.Function.Name, res.Output.Metafile)
		if err != nil {
			return results, fmt.Errorf("function %s: %w", res.Function.Name, err)
		}
		results = append(results, analysis)
	}
	return results, nil
}
