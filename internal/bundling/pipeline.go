package bundling

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// State is the position of one function in its pipeline
type State string

const (
	StatePending     State = "pending"
	StateResolving   State = "resolving"
	StateSelecting   State = "selecting"
	StateTranspiling State = "transpiling"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Observer receives every finished function result. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveFunction(result FunctionResult)
}

// Options are the build-wide settings of a pipeline
type Options struct {
	Bundler     BundlerOverride
	Concurrency int  // <= 0 means one worker per CPU
	Analyze     bool // request esbuild metafiles for bundled functions
	// OutputDir is the absolute directory the caller stores code in. Source
	// maps are made relative to it. Empty leaves them relative to the source.
	OutputDir string
}

// FunctionResult is everything the pipeline decided and produced for one function
type FunctionResult struct {
	Function     FunctionDescriptor
	Target       Target
	Format       ModuleFormat
	FormatSource FormatSource
	Decision     Decision
	Output       *TranspileResult
	Err          error
	State        State
	Duration     time.Duration
}

// Succeeded reports whether the function produced output
func (r FunctionResult) Succeeded() bool {
	return r.State == StateSucceeded
}

// BuildReport collects the results of one build, in input order
type BuildReport struct {
	BuildID  string
	Results  []FunctionResult
	Duration time.Duration
}

// Failed returns the results that ended in StateFailed
func (r *BuildReport) Failed() []FunctionResult {
	var failed []FunctionResult
	for _, res := range r.Results {
		if res.State == StateFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// SucceededCount returns how many functions produced output
func (r *BuildReport) SucceededCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

// Pipeline runs resolve -> select -> transpile -> enrich for each function
type Pipeline struct {
	transpiler Transpiler
	project    ProjectMetadata
	options    Options
	observers  []Observer
	tracer     trace.Tracer
}

// NewPipeline creates a pipeline around a compiler backend
func NewPipeline(transpiler Transpiler, project ProjectMetadata, options Options, observers ...Observer) *Pipeline {
	return &Pipeline{
		transpiler: transpiler,
		project:    project,
		options:    options,
		observers:  observers,
		tracer:     otel.Tracer("funcpack-bundling"),
	}
}

// Build runs every function concurrently. A failing function never cancels or
// affects its siblings; each failure is recorded in its own result.
func (p *Pipeline) Build(ctx context.Context, functions []FunctionDescriptor) *BuildReport {
	start := time.Now()
	report := &BuildReport{
		BuildID: uuid.NewString(),
		Results: make([]FunctionResult, len(functions)),
	}

	ctx, span := p.tracer.Start(ctx, "bundling.build",
		trace.WithAttributes(
			attribute.String("build.id", report.BuildID),
			attribute.Int("build.functions", len(functions)),
		),
	)
	defer span.End()

	limit := p.options.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	seen := make(map[string]bool, len(functions))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, fn := range functions {
		if seen[fn.Name] {
			err := &ConfigurationError{Field: "name", Reason: fmt.Sprintf("duplicate function name %q", fn.Name)}
			report.Results[i] = p.finish(FunctionResult{
				Function: fn,
				State:    StateFailed,
				Err:      Enrich(err, fn.Name, fn.RuntimeOrDefault(), StrategyUnselected, ""),
			})
			continue
		}
		seen[fn.Name] = true

		i, fn := i, fn
		g.Go(func() error {
			report.Results[i] = p.Run(ctx, fn)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)

	failed := len(report.Failed())
	span.SetAttributes(attribute.Int("build.failed", failed))
	log.Info().
		Str("build_id", report.BuildID).
		Int("functions", len(functions)).
		Int("failed", failed).
		Dur("duration", report.Duration).
		Msg("Build finished")

	return report
}

// Run takes one function through its pipeline. Format and target are resolved
// here exactly once and copied into the request; nothing downstream resolves
// them again.
func (p *Pipeline) Run(ctx context.Context, fn FunctionDescriptor) FunctionResult {
	start := time.Now()
	res := FunctionResult{Function: fn, State: StatePending}

	ctx, span := p.tracer.Start(ctx, "bundling.function",
		trace.WithAttributes(attribute.String("function.name", fn.Name)),
	)
	defer span.End()

	fail := func(err error) FunctionResult {
		strategy := res.Decision.Strategy
		target := ""
		if res.Target.Major != 0 {
			target = res.Target.String()
		}
		res.Err = Enrich(err, fn.Name, fn.RuntimeOrDefault(), strategy, target)
		res.Duration = time.Since(start)
		p.transition(&res, StateFailed)
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return p.finish(res)
	}

	if err := p.plan(&res); err != nil {
		return fail(err)
	}
	span.SetAttributes(
		attribute.String("function.strategy", string(res.Decision.Strategy)),
		attribute.String("function.target", res.Target.String()),
		attribute.String("function.format", string(res.Format)),
	)

	p.transition(&res, StateTranspiling)
	out, err := p.transpile(ctx, fn, res.Format, res.Target, res.Decision.Strategy)
	if err != nil {
		return fail(err)
	}

	res.Output = out
	res.Duration = time.Since(start)
	p.transition(&res, StateSucceeded)
	return p.finish(res)
}

// Plan resolves and selects without invoking the backend. The returned
// result stays in StateSelecting on success.
func (p *Pipeline) Plan(fn FunctionDescriptor) FunctionResult {
	res := FunctionResult{Function: fn, State: StatePending}
	if err := p.plan(&res); err != nil {
		target := ""
		if res.Target.Major != 0 {
			target = res.Target.String()
		}
		res.Err = Enrich(err, fn.Name, fn.RuntimeOrDefault(), StrategyUnselected, target)
		res.State = StateFailed
	}
	return res
}

func (p *Pipeline) plan(res *FunctionResult) error {
	fn := res.Function

	p.transition(res, StateResolving)
	if err := fn.Validate(); err != nil {
		return err
	}
	target, err := ResolveTarget(fn.NodeVersion)
	if err != nil {
		return err
	}
	res.Target = target
	res.Format, res.FormatSource = ResolveModuleFormat(fn, p.project)

	p.transition(res, StateSelecting)
	decision, err := SelectStrategy(StrategyInput{
		Bundle:          fn.Bundle,
		ExternalModules: fn.ExternalModules,
		Format:          res.Format,
		Target:          target,
		Bundler:         p.options.Bundler,
	})
	if err != nil {
		return err
	}
	res.Decision = decision
	return nil
}

func (p *Pipeline) transpile(ctx context.Context, fn FunctionDescriptor, format ModuleFormat, target Target, strategy Strategy) (*TranspileResult, error) {
	switch strategy {
	case StrategyTranspileOnly:
		req := NewTranspileRequest(fn.Path, format, target, false, fn.Sourcemap, p.project.TsConfigRaw, nil, false)
		return p.transpiler.TranspileOnly(ctx, p.locate(req, fn.Name))
	case StrategyTranspileAndBundle:
		req := NewTranspileRequest(fn.Path, format, target, true, fn.Sourcemap, p.project.TsConfigRaw, fn.ExternalModules, p.options.Analyze)
		return p.transpiler.TranspileAndBundle(ctx, p.locate(req, fn.Name))
	case StrategyLegacyPackager:
		// The legacy packager ships one CommonJS file per function; ESM
		// syntax in the source is converted on the way.
		req := NewTranspileRequest(fn.Path, FormatCommonJS, target, false, fn.Sourcemap, p.project.TsConfigRaw, nil, false)
		return p.transpiler.TranspileOnly(ctx, p.locate(req, fn.Name))
	default:
		return nil, &ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("no transpiler operation for strategy %q", strategy)}
	}
}

// locate anchors the request at the tsconfig directory and at the file the
// code will be stored in
func (p *Pipeline) locate(req TranspileRequest, name string) TranspileRequest {
	var outfile string
	if p.options.OutputDir != "" {
		outfile = filepath.Join(p.options.OutputDir, name+OutputExtension(req.Format))
	}
	var workingDir string
	if req.TsConfigRaw != "" {
		workingDir = p.project.TsConfigDir
	}
	return req.WithPaths(workingDir, outfile)
}

func (p *Pipeline) transition(res *FunctionResult, next State) {
	if res.State.Terminal() {
		log.Error().
			Str("function", res.Function.Name).
			Str("from", string(res.State)).
			Str("to", string(next)).
			Msg("Ignoring transition out of a terminal state")
		return
	}
	log.Debug().
		Str("function", res.Function.Name).
		Str("from", string(res.State)).
		Str("to", string(next)).
		Msg("Function state changed")
	res.State = next
}

func (p *Pipeline) finish(res FunctionResult) FunctionResult {
	if res.Err != nil {
		log.Warn().
			Err(res.Err).
			Str("function", res.Function.Name).
			Str("class", string(Classify(res.Err))).
			Str("strategy", string(res.Decision.Strategy)).
			Msg("Function build failed")
	} else {
		log.Info().
			Str("function", res.Function.Name).
			Str("strategy", string(res.Decision.Strategy)).
			Str("rule", res.Decision.Rule).
			Str("target", res.Target.String()).
			Str("format", string(res.Format)).
			Dur("duration", res.Duration).
			Msg("Function built")
	}

	for _, o := range p.observers {
		o.ObserveFunction(res)
	}
	return res
}
