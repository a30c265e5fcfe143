package bundling

import (
	"path/filepath"
	"strings"
)

// FormatSource records which rule decided a function's module format
type FormatSource string

const (
	FormatFromFunction  FormatSource = "function"
	FormatFromProject   FormatSource = "project"
	FormatFromExtension FormatSource = "extension"
	FormatFromDefault   FormatSource = "default"
)

// ResolveModuleFormat returns the output module format for a function.
// Precedence is fixed: per-function override, project declaration, file
// extension, then CommonJS.
func ResolveModuleFormat(fn FunctionDescriptor, project ProjectMetadata) (ModuleFormat, FormatSource) {
	if fn.ModuleFormat != "" {
		return fn.ModuleFormat, FormatFromFunction
	}
	if project.ModuleFormat != "" {
		return project.ModuleFormat, FormatFromProject
	}
	if format, ok := formatFromExtension(fn.Path); ok {
		return format, FormatFromExtension
	}
	return FormatCommonJS, FormatFromDefault
}

// OutputExtension returns the file extension of emitted code. ESM output gets
// .mjs so Node loads it as a module without a package.json.
func OutputExtension(format ModuleFormat) string {
	if format == FormatESModule {
		return ".mjs"
	}
	return ".js"
}

func formatFromExtension(path string) (ModuleFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mjs", ".mts":
		return FormatESModule, true
	case ".cjs", ".cts":
		return FormatCommonJS, true
	default:
		return "", false
	}
}
