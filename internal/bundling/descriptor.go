// Package bundling turns function sources into deployable code. It resolves a
// Node target and module format for each function, picks a bundling strategy,
// runs the compiler backend and attributes every failure to its function.
package bundling

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Runtime identifies the language runtime a function is written for
type Runtime string

const (
	// RuntimeJavaScript covers JavaScript and TypeScript sources
	RuntimeJavaScript Runtime = "js"
)

// ModuleFormat is the module system of the emitted code
type ModuleFormat string

const (
	FormatCommonJS ModuleFormat = "cjs"
	FormatESModule ModuleFormat = "esm"
)

// ParseModuleFormat accepts the spellings used in package.json, tsconfig and
// funcpack configuration. An empty string yields an empty format (no override).
func ParseModuleFormat(s string) (ModuleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "cjs", "commonjs":
		return FormatCommonJS, nil
	case "esm", "module", "es", "esmodule":
		return FormatESModule, nil
	default:
		return "", &ConfigurationError{
			Field:  "module_format",
			Reason: fmt.Sprintf("unknown module format %q (valid: cjs, esm)", s),
		}
	}
}

// FunctionDescriptor describes one discovered function. It is created once by
// the discovery step and only read afterwards.
type FunctionDescriptor struct {
	Name            string
	Path            string // absolute path of the entry file
	Runtime         Runtime
	NodeVersion     string       // runtime version constraint, e.g. "18", "^20", "latest"
	ModuleFormat    ModuleFormat // per-function override; empty means unset
	Sourcemap       bool
	Bundle          *bool // nil when the user did not decide
	ExternalModules []string
}

// RuntimeOrDefault returns the declared runtime, falling back to JavaScript
func (fn FunctionDescriptor) RuntimeOrDefault() Runtime {
	if fn.Runtime == "" {
		return RuntimeJavaScript
	}
	return fn.Runtime
}

// Validate checks the fields the pipeline relies on
func (fn FunctionDescriptor) Validate() error {
	if fn.Name == "" {
		return &ConfigurationError{Field: "name", Reason: "function name cannot be empty"}
	}
	if fn.Path == "" {
		return &ConfigurationError{Field: "path", Reason: "function path cannot be empty"}
	}
	if !filepath.IsAbs(fn.Path) {
		return &ConfigurationError{Field: "path", Reason: fmt.Sprintf("function path must be absolute (got: %s)", fn.Path)}
	}
	if rt := fn.RuntimeOrDefault(); rt != RuntimeJavaScript {
		return &ConfigurationError{Field: "runtime", Reason: fmt.Sprintf("unsupported runtime %q", rt)}
	}
	for _, name := range fn.ExternalModules {
		if strings.TrimSpace(name) == "" {
			return &ConfigurationError{Field: "external_modules", Reason: "external module name cannot be empty"}
		}
	}
	return nil
}

// ProjectMetadata carries project-wide inputs read by the config loader
type ProjectMetadata struct {
	// ModuleFormat is the project-level declaration, e.g. package.json "type".
	ModuleFormat ModuleFormat
	// TsConfigRaw is the project's compiler configuration as JSON.
	TsConfigRaw string
	// TsConfigDir is the directory TsConfigRaw was read from. Its baseUrl and
	// paths resolve against it.
	TsConfigDir string
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}
