package discovery

import (
	"fmt"
	"os"
	"strings"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

// Settings are user build settings for functions. Zero values mean unset.
type Settings struct {
	NodeVersion     string
	ModuleFormat    string
	Bundle          *bool
	Sourcemap       *bool
	ExternalModules []string
}

// Merge returns s with every field set in other replacing the one in s.
// External modules are combined without duplicates.
func (s Settings) Merge(other Settings) Settings {
	out := s
	if other.NodeVersion != "" {
		out.NodeVersion = other.NodeVersion
	}
	if other.ModuleFormat != "" {
		out.ModuleFormat = other.ModuleFormat
	}
	if other.Bundle != nil {
		out.Bundle = other.Bundle
	}
	if other.Sourcemap != nil {
		out.Sourcemap = other.Sourcemap
	}
	out.ExternalModules = mergeUnique(s.ExternalModules, other.ExternalModules)
	return out
}

// Settings converts in-source annotations to settings
func (a Annotations) Settings() Settings {
	var s Settings
	if a.NodeVersion != nil {
		s.NodeVersion = *a.NodeVersion
	}
	if a.ModuleFormat != nil {
		s.ModuleFormat = *a.ModuleFormat
	}
	s.Bundle = a.Bundle
	s.Sourcemap = a.Sourcemap
	s.ExternalModules = a.ExternalModules
	return s
}

// Describe builds a descriptor for one function. Settings are layered as
// defaults, then the per-function override, then the annotations in the
// function source.
func Describe(file FunctionFile, defaults Settings, override Settings) (bundling.FunctionDescriptor, error) {
	code, err := os.ReadFile(file.Path)
	if err != nil {
		return bundling.FunctionDescriptor{}, fmt.Errorf("failed to read function file: %w", err)
	}

	settings := defaults.Merge(override).Merge(ParseAnnotations(string(code)).Settings())

	format, err := bundling.ParseModuleFormat(settings.ModuleFormat)
	if err != nil {
		return bundling.FunctionDescriptor{}, err
	}

	fn := bundling.FunctionDescriptor{
		Name:            file.Name,
		Path:            file.Path,
		Runtime:         bundling.RuntimeJavaScript,
		NodeVersion:     settings.NodeVersion,
		ModuleFormat:    format,
		Bundle:          settings.Bundle,
		ExternalModules: settings.ExternalModules,
	}
	if settings.Sourcemap != nil {
		fn.Sourcemap = *settings.Sourcemap
	}
	return fn, nil
}

// DescribeAll describes every file. Overrides are looked up by exact name,
// then by lowercase name. A function whose settings cannot be read
// is returned in the failures map by name and left out of the descriptors.
func DescribeAll(files []FunctionFile, defaults Settings, overrides map[string]Settings) ([]bundling.FunctionDescriptor, map[string]error) {
	descriptors := make([]bundling.FunctionDescriptor, 0, len(files))
	failures := make(map[string]error)

	for _, file := range files {
		override, ok := overrides[file.Name]
		if !ok {
			override = overrides[strings.ToLower(file.Name)]
		}
		fn, err := Describe(file, defaults, override)
		if err != nil {
			failures[file.Name] = bundling.Enrich(err, file.Name, bundling.RuntimeJavaScript, bundling.StrategyUnselected, "")
			continue
		}
		descriptors = append(descriptors, fn)
	}
	return descriptors, failures
}

func mergeUnique(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
