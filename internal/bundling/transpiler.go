package bundling

import "context"

// Transpiler is the compiler backend capability. Implementations must be safe
// for concurrent use; every call receives its own request value.
type Transpiler interface {
	// TranspileOnly compiles exactly one file. Bundling is always off.
	TranspileOnly(ctx context.Context, req TranspileRequest) (*TranspileResult, error)
	// TranspileAndBundle inlines local imports and leaves packages external.
	TranspileAndBundle(ctx context.Context, req TranspileRequest) (*TranspileResult, error)
}

// TranspileRequest is built once per invocation and passed by value.
// Use NewTranspileRequest so that slices are not shared with the caller.
type TranspileRequest struct {
	Path        string
	Format      ModuleFormat
	Target      Target
	Bundle      bool
	Sourcemap   bool
	TsConfigRaw string
	External    []string
	Metafile    bool

	// WorkingDir anchors relative paths in TsConfigRaw. Empty means the
	// directory of Path.
	WorkingDir string
	// Outfile is where the caller will store the code. Source map paths are
	// relative to it. Empty means next to Path.
	Outfile string
}

// NewTranspileRequest copies its inputs into a fresh request
func NewTranspileRequest(path string, format ModuleFormat, target Target, bundle, sourcemap bool, tsconfigRaw string, external []string, metafile bool) TranspileRequest {
	var ext []string
	if len(external) > 0 {
		ext = make([]string, len(external))
		copy(ext, external)
	}
	return TranspileRequest{
		Path:        path,
		Format:      format,
		Target:      target,
		Bundle:      bundle,
		Sourcemap:   sourcemap,
		TsConfigRaw: tsconfigRaw,
		External:    ext,
		Metafile:    metafile,
	}
}

// WithPaths returns a copy of r with the working directory and final output
// location set
func (r TranspileRequest) WithPaths(workingDir, outfile string) TranspileRequest {
	r.WorkingDir = workingDir
	r.Outfile = outfile
	return r
}

// TranspileResult is the compiled output of one function
type TranspileResult struct {
	Code      string
	SourceMap string // empty unless a source map was requested
	Metafile  string // esbuild metafile JSON, only for bundled builds that asked for it
	Warnings  []Diagnostic
}

// HasSourceMap reports whether a source map was produced
func (r *TranspileResult) HasSourceMap() bool {
	return r != nil && r.SourceMap != ""
}
