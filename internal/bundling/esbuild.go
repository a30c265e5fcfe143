package bundling

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// DefaultTranspileTimeout bounds a single backend invocation
const DefaultTranspileTimeout = 30 * time.Second

var esbuildFormats = map[ModuleFormat]api.Format{
	FormatCommonJS: api.FormatCommonJS,
	FormatESModule: api.FormatESModule,
}

// EsbuildError is the raw failure reported by esbuild
type EsbuildError struct {
	Messages []api.Message
}

func (e *EsbuildError) Error() string {
	formatted := api.FormatMessages(e.Messages, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return strings.TrimSpace(strings.Join(formatted, "\n"))
}

// EsbuildTranspiler runs esbuild in-process
type EsbuildTranspiler struct {
	timeout time.Duration
}

// NewEsbuildTranspiler creates an esbuild backend. A zero timeout selects
// DefaultTranspileTimeout.
func NewEsbuildTranspiler(timeout time.Duration) *EsbuildTranspiler {
	if timeout <= 0 {
		timeout = DefaultTranspileTimeout
	}
	return &EsbuildTranspiler{timeout: timeout}
}

// TranspileOnly compiles one file with bundling disabled
func (t *EsbuildTranspiler) TranspileOnly(ctx context.Context, req TranspileRequest) (*TranspileResult, error) {
	return t.build(ctx, req, false)
}

// TranspileAndBundle inlines local imports. Packages from node_modules and
// every name in req.External stay as runtime imports.
func (t *EsbuildTranspiler) TranspileAndBundle(ctx context.Context, req TranspileRequest) (*TranspileResult, error) {
	return t.build(ctx, req, true)
}

func (t *EsbuildTranspiler) build(ctx context.Context, req TranspileRequest, bundle bool) (*TranspileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, ok := esbuildFormats[req.Format]
	if !ok {
		return nil, &UnsupportedTargetError{
			Target: req.Target,
			Format: req.Format,
			Err:    fmt.Errorf("unknown module format %q", req.Format),
		}
	}
	if req.Format == FormatESModule && !req.Target.SupportsESMOutput() {
		return nil, &UnsupportedTargetError{Target: req.Target, Format: req.Format}
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		workingDir = filepath.Dir(req.Path)
	}
	outfile := req.Outfile
	if outfile == "" {
		outfile = outfileFor(req.Path, req.Format)
	}

	opts := api.BuildOptions{
		EntryPoints:   []string{req.Path},
		AbsWorkingDir: workingDir,
		Outfile:       outfile,
		Bundle:        bundle,
		Format:        format,
		Platform:      api.PlatformNode,
		Engines: []api.Engine{
			{Name: api.EngineNode, Version: strconv.FormatUint(req.Target.Major, 10)},
		},
		LogLevel:    api.LogLevelSilent,
		TsconfigRaw: req.TsConfigRaw,
		Write:       false,
	}
	if bundle {
		opts.Packages = api.PackagesExternal
		opts.External = req.External
		opts.Metafile = req.Metafile
	}
	if req.Sourcemap {
		opts.Sourcemap = api.SourceMapExternal
	}

	buildCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// esbuild cannot be interrupted; an abandoned build finishes in the
	// background and its result is dropped.
	done := make(chan api.BuildResult, 1)
	go func() {
		done <- api.Build(opts)
	}()

	var result api.BuildResult
	select {
	case <-buildCtx.Done():
		if ctx.Err() == nil {
			return nil, fmt.Errorf("transpiling %s: timeout after %s", req.Path, t.timeout)
		}
		return nil, ctx.Err()
	case result = <-done:
	}

	if len(result.Errors) > 0 {
		return nil, classifyBuildErrors(req, result.Errors)
	}

	out := &TranspileResult{
		Metafile: result.Metafile,
		Warnings: toDiagnostics(result.Warnings),
	}
	for _, file := range result.OutputFiles {
		if strings.HasSuffix(file.Path, ".map") {
			out.SourceMap = string(file.Contents)
		} else {
			out.Code = string(file.Contents)
		}
	}

	if len(out.Warnings) > 0 {
		log.Debug().
			Str("path", req.Path).
			Int("warnings", len(out.Warnings)).
			Msg("esbuild reported warnings")
	}

	return out, nil
}

func classifyBuildErrors(req TranspileRequest, msgs []api.Message) error {
	raw := &EsbuildError{Messages: msgs}
	diags := toDiagnostics(msgs)
	for _, d := range diags {
		if strings.Contains(d.Text, "configured target environment") {
			return &UnsupportedTargetError{
				Target:      req.Target,
				Format:      req.Format,
				Diagnostics: diags,
				Err:         raw,
			}
		}
	}
	return &TranspilationError{
		Path:        req.Path,
		Diagnostics: diags,
		Err:         raw,
	}
}

func toDiagnostics(msgs []api.Message) []Diagnostic {
	if len(msgs) == 0 {
		return nil
	}
	diags := make([]Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := Diagnostic{Text: m.Text}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column
			d.LineText = m.Location.LineText
		}
		diags = append(diags, d)
	}
	return diags
}

// outfileFor names the in-memory output next to the entry when the caller
// did not say where the code will live
func outfileFor(path string, format ModuleFormat) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), stem+".out"+OutputExtension(format))
}
