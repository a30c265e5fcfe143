package bundling

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transpileCall struct {
	op  string
	req TranspileRequest
}

// fakeTranspiler records requests and fails for configured paths
type fakeTranspiler struct {
	mu    sync.Mutex
	calls []transpileCall
	fail  map[string]error
	delay map[string]time.Duration
}

func (f *fakeTranspiler) TranspileOnly(ctx context.Context, req TranspileRequest) (*TranspileResult, error) {
	return f.do(ctx, "only", req)
}

func (f *fakeTranspiler) TranspileAndBundle(ctx context.Context, req TranspileRequest) (*TranspileResult, error) {
	return f.do(ctx, "bundle", req)
}

func (f *fakeTranspiler) do(ctx context.Context, op string, req TranspileRequest) (*TranspileResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transpileCall{op: op, req: req})
	err := f.fail[req.Path]
	delay := f.delay[req.Path]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &TranspileResult{Code: fmt.Sprintf("// %s %s %s", op, req.Format, req.Target)}, nil
}

func (f *fakeTranspiler) callFor(path string) (transpileCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.req.Path == path {
			return c, true
		}
	}
	return transpileCall{}, false
}

type recordingObserver struct {
	mu      sync.Mutex
	results []FunctionResult
}

func (o *recordingObserver) ObserveFunction(result FunctionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func TestPipeline_Run_DefaultScenario(t *testing.T) {
	fake := &fakeTranspiler{}
	p := NewPipeline(fake, ProjectMetadata{TsConfigRaw: `{"compilerOptions":{}}`}, Options{})

	res := p.Run(context.Background(), FunctionDescriptor{
		Name:        "hello",
		Path:        "/fns/hello.ts",
		NodeVersion: "node18",
	})

	require.NoError(t, res.Err)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, "node18", res.Target.String())
	assert.Equal(t, FormatCommonJS, res.Format)
	assert.Equal(t, FormatFromDefault, res.FormatSource)
	assert.Equal(t, StrategyTranspileOnly, res.Decision.Strategy)

	call, ok := fake.callFor("/fns/hello.ts")
	require.True(t, ok)
	assert.Equal(t, "only", call.op)
	assert.False(t, call.req.Bundle)
	assert.Equal(t, FormatCommonJS, call.req.Format)
	assert.Equal(t, Target{Major: 18}, call.req.Target)
	assert.Equal(t, `{"compilerOptions":{}}`, call.req.TsConfigRaw)
}

func TestPipeline_Run_BundleScenario(t *testing.T) {
	fake := &fakeTranspiler{}
	p := NewPipeline(fake, ProjectMetadata{}, Options{Analyze: true})

	res := p.Run(context.Background(), FunctionDescriptor{
		Name:            "hello",
		Path:            "/fns/hello.mjs",
		NodeVersion:     "18",
		ModuleFormat:    FormatESModule,
		Bundle:          BoolPtr(true),
		Sourcemap:       true,
		ExternalModules: []string{"left-pad"},
	})

	require.NoError(t, res.Err)
	assert.Equal(t, StrategyTranspileAndBundle, res.Decision.Strategy)
	assert.Equal(t, FormatFromFunction, res.FormatSource)

	call, ok := fake.callFor("/fns/hello.mjs")
	require.True(t, ok)
	assert.Equal(t, "bundle", call.op)
	assert.True(t, call.req.Bundle)
	assert.True(t, call.req.Sourcemap)
	assert.True(t, call.req.Metafile)
	assert.Equal(t, []string{"left-pad"}, call.req.External)
}

func TestPipeline_Run_LegacyEmitsCommonJS(t *testing.T) {
	fake := &fakeTranspiler{}
	p := NewPipeline(fake, ProjectMetadata{}, Options{Bundler: BundlerLegacy})

	res := p.Run(context.Background(), FunctionDescriptor{Name: "old", Path: "/fns/old.js", NodeVersion: "16"})

	require.NoError(t, res.Err)
	assert.Equal(t, StrategyLegacyPackager, res.Decision.Strategy)
	call, ok := fake.callFor("/fns/old.js")
	require.True(t, ok)
	assert.Equal(t, "only", call.op)
	assert.Equal(t, FormatCommonJS, call.req.Format)
}

func TestPipeline_Run_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   FunctionDescriptor
	}{
		{"bad version", FunctionDescriptor{Name: "a", Path: "/fns/a.js", NodeVersion: "banana"}},
		{"relative path", FunctionDescriptor{Name: "a", Path: "fns/a.js"}},
		{"unknown runtime", FunctionDescriptor{Name: "a", Path: "/fns/a.py", Runtime: "py"}},
		{"externals without bundling", FunctionDescriptor{Name: "a", Path: "/fns/a.js", Bundle: BoolPtr(false), ExternalModules: []string{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTranspiler{}
			p := NewPipeline(fake, ProjectMetadata{}, Options{})

			res := p.Run(context.Background(), tt.fn)
			require.Error(t, res.Err)
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, ClassConfiguration, Classify(res.Err))

			var be *BundlingError
			require.True(t, errors.As(res.Err, &be))
			assert.Equal(t, "a", be.FunctionName)
			assert.NotEmpty(t, be.Runtime)
			assert.Equal(t, StrategyUnselected, be.Strategy)

			assert.Empty(t, fake.calls, "backend must not run")
		})
	}
}

func TestPipeline_Run_TranspilerFailureIsEnriched(t *testing.T) {
	diag := Diagnostic{Text: "Unterminated string literal", File: "broken.ts", Line: 1, Column: 10}
	fake := &fakeTranspiler{fail: map[string]error{
		"/fns/broken.ts": &TranspilationError{Path: "/fns/broken.ts", Diagnostics: []Diagnostic{diag}},
	}}
	p := NewPipeline(fake, ProjectMetadata{}, Options{})

	res := p.Run(context.Background(), FunctionDescriptor{Name: "broken", Path: "/fns/broken.ts", NodeVersion: "18"})

	require.Error(t, res.Err)
	assert.Equal(t, StateFailed, res.State)
	assert.ErrorIs(t, res.Err, ErrTranspilation)

	var be *BundlingError
	require.True(t, errors.As(res.Err, &be))
	assert.Equal(t, "broken", be.FunctionName)
	assert.Equal(t, RuntimeJavaScript, be.Runtime)
	assert.Equal(t, StrategyTranspileOnly, be.Strategy)
	assert.Equal(t, "node18", be.Target)
	assert.Contains(t, res.Err.Error(), "Unterminated string literal")
	assert.Equal(t, []Diagnostic{diag}, Diagnostics(res.Err))
}

func TestPipeline_Build_FaultIsolation(t *testing.T) {
	fake := &fakeTranspiler{
		fail: map[string]error{
			"/fns/bad.js": &TranspilationError{Diagnostics: []Diagnostic{{Text: "Expected identifier"}}},
		},
		delay: map[string]time.Duration{
			"/fns/slow.js": 50 * time.Millisecond,
		},
	}
	observer := &recordingObserver{}
	p := NewPipeline(fake, ProjectMetadata{}, Options{Concurrency: 4}, observer)

	functions := []FunctionDescriptor{
		{Name: "slow", Path: "/fns/slow.js"},
		{Name: "bad", Path: "/fns/bad.js"},
		{Name: "cfg", Path: "/fns/cfg.js", NodeVersion: "not-a-version"},
		{Name: "ok", Path: "/fns/ok.mjs"},
	}

	report := p.Build(context.Background(), functions)

	require.Len(t, report.Results, 4)
	assert.NotEmpty(t, report.BuildID)

	for i, fn := range functions {
		assert.Equal(t, fn.Name, report.Results[i].Function.Name, "results stay in input order")
		assert.True(t, report.Results[i].State.Terminal())
	}

	assert.Equal(t, StateSucceeded, report.Results[0].State)
	assert.Equal(t, StateFailed, report.Results[1].State)
	assert.Equal(t, ClassTranspilation, Classify(report.Results[1].Err))
	assert.Equal(t, StateFailed, report.Results[2].State)
	assert.Equal(t, ClassConfiguration, Classify(report.Results[2].Err))
	assert.Equal(t, StateSucceeded, report.Results[3].State)
	assert.Equal(t, FormatESModule, report.Results[3].Format)

	assert.Equal(t, 2, report.SucceededCount())
	assert.Len(t, report.Failed(), 2)
	assert.Len(t, observer.results, 4)
}

func TestPipeline_Build_DuplicateNames(t *testing.T) {
	fake := &fakeTranspiler{}
	p := NewPipeline(fake, ProjectMetadata{}, Options{})

	report := p.Build(context.Background(), []FunctionDescriptor{
		{Name: "hello", Path: "/fns/hello.js"},
		{Name: "hello", Path: "/fns/hello/index.js"},
	})

	assert.Equal(t, StateSucceeded, report.Results[0].State)
	assert.Equal(t, StateFailed, report.Results[1].State)
	assert.ErrorIs(t, report.Results[1].Err, ErrConfiguration)
}

func TestPipeline_Build_Concurrent(t *testing.T) {
	fake := &fakeTranspiler{}
	p := NewPipeline(fake, ProjectMetadata{}, Options{Concurrency: 8})

	var functions []FunctionDescriptor
	for i := 0; i < 64; i++ {
		name := fmt.Sprintf("fn%02d", i)
		functions = append(functions, FunctionDescriptor{
			Name:            name,
			Path:            filepath.Join("/fns", name+".js"),
			ExternalModules: []string{name + "-dep"},
		})
	}

	report := p.Build(context.Background(), functions)

	require.Len(t, report.Results, 64)
	for i, res := range report.Results {
		require.NoError(t, res.Err)
		call, ok := fake.callFor(functions[i].Path)
		require.True(t, ok)
		assert.Equal(t, []string{functions[i].Name + "-dep"}, call.req.External, "requests are never shared")
	}
}

func TestPipeline_Run_LocatesOutput(t *testing.T) {
	tests := []struct {
		name           string
		project        ProjectMetadata
		fn             FunctionDescriptor
		wantWorkingDir string
		wantOutfile    string
	}{
		{
			name:           "directory function uses the tsconfig directory",
			project:        ProjectMetadata{TsConfigRaw: `{"compilerOptions":{}}`, TsConfigDir: "/project"},
			fn:             FunctionDescriptor{Name: "hello", Path: "/project/functions/hello/index.ts"},
			wantWorkingDir: "/project",
			wantOutfile:    filepath.Join("/out", "hello.js"),
		},
		{
			name:        "esm output",
			project:     ProjectMetadata{ModuleFormat: FormatESModule},
			fn:          FunctionDescriptor{Name: "api", Path: "/project/functions/api.ts"},
			wantOutfile: filepath.Join("/out", "api.mjs"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTranspiler{}
			p := NewPipeline(fake, tt.project, Options{OutputDir: "/out"})

			res := p.Run(context.Background(), tt.fn)
			require.NoError(t, res.Err)

			call, ok := fake.callFor(tt.fn.Path)
			require.True(t, ok)
			assert.Equal(t, tt.wantWorkingDir, call.req.WorkingDir)
			assert.Equal(t, tt.wantOutfile, call.req.Outfile)
		})
	}

	t.Run("no output directory", func(t *testing.T) {
		fake := &fakeTranspiler{}
		p := NewPipeline(fake, ProjectMetadata{}, Options{})

		require.NoError(t, p.Run(context.Background(), FunctionDescriptor{Name: "a", Path: "/fns/a.js"}).Err)
		call, ok := fake.callFor("/fns/a.js")
		require.True(t, ok)
		assert.Empty(t, call.req.Outfile)
		assert.Empty(t, call.req.WorkingDir)
	})
}

func TestPipeline_TransitionOutOfTerminalState(t *testing.T) {
	p := NewPipeline(nil, ProjectMetadata{}, Options{})

	for _, terminal := range []State{StateSucceeded, StateFailed} {
		res := FunctionResult{Function: FunctionDescriptor{Name: "hello"}, State: terminal}
		p.transition(&res, StateTranspiling)
		assert.Equal(t, terminal, res.State)
	}

	res := FunctionResult{Function: FunctionDescriptor{Name: "hello"}, State: StateTranspiling}
	p.transition(&res, StateSucceeded)
	assert.Equal(t, StateSucceeded, res.State)
}

func TestPipeline_Plan(t *testing.T) {
	fake := &fakeTranspiler{}
	p := NewPipeline(fake, ProjectMetadata{ModuleFormat: FormatESModule}, Options{})

	res := p.Plan(FunctionDescriptor{Name: "hello", Path: "/fns/hello.js", NodeVersion: "20"})
	require.NoError(t, res.Err)
	assert.Equal(t, StateSelecting, res.State)
	assert.Equal(t, FormatFromProject, res.FormatSource)
	assert.Equal(t, StrategyTranspileOnly, res.Decision.Strategy)
	assert.Empty(t, fake.calls)

	bad := p.Plan(FunctionDescriptor{Name: "old", Path: "/fns/old.js", NodeVersion: "10"})
	require.Error(t, bad.Err)
	assert.Equal(t, StateFailed, bad.State)
}

// The scenario from the pipeline contract, run end to end on esbuild
func TestPipeline_Esbuild_EndToEnd(t *testing.T) {
	dir := writeSources(t, map[string]string{
		"hello.ts":  "import { x } from './dep';\nexport default () => x;\n",
		"dep.ts":    "export const x = '" + depMarker + "';\n",
		"broken.ts": "const s = \"abc;\n",
	})
	p := NewPipeline(NewEsbuildTranspiler(0), ProjectMetadata{}, Options{})

	report := p.Build(context.Background(), []FunctionDescriptor{
		{Name: "hello", Path: filepath.Join(dir, "hello.ts"), NodeVersion: "node18"},
		{Name: "broken", Path: filepath.Join(dir, "broken.ts"), NodeVersion: "node18"},
	})

	hello := report.Results[0]
	require.NoError(t, hello.Err)
	assert.Equal(t, StrategyTranspileOnly, hello.Decision.Strategy)
	assert.Contains(t, hello.Output.Code, "module.exports")
	assert.NotContains(t, hello.Output.Code, depMarker)

	broken := report.Results[1]
	require.Error(t, broken.Err)
	assert.ErrorIs(t, broken.Err, ErrTranspilation)
	var be *BundlingError
	require.True(t, errors.As(broken.Err, &be))
	assert.Equal(t, "broken", be.FunctionName)
	assert.Equal(t, StrategyTranspileOnly, be.Strategy)
	assert.Contains(t, broken.Err.Error(), "Unterminated string literal")
}
