package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxbase-eu/funcpack/internal/artifact"
	"github.com/fluxbase-eu/funcpack/internal/bundling"
	"github.com/fluxbase-eu/funcpack/internal/config"
	"github.com/fluxbase-eu/funcpack/internal/observability"
	"github.com/fluxbase-eu/funcpack/internal/redact"
	"github.com/fluxbase-eu/funcpack/internal/report"
)

var (
	buildWatch       bool
	buildUpload      bool
	buildAnalyze     bool
	buildMetricsFile string
	buildOutDir      string
	buildConcurrency int
)

var buildCmd = &cobra.Command{
	Use:   "build [directory]",
	Short: "Build every function in a directory",
	Long: `Build every function in the functions directory (default from config,
usually ./functions) and write the results to the output directory.

A function is either a file directly in the directory (hello.ts) or a
directory with an index file (hello/index.ts). Per-function settings can be
set in funcpack.yaml or with annotations in the source:

  // @funcpack:node-version 18
  // @funcpack:format esm
  // @funcpack:bundle true
  // @funcpack:external sharp,canvas

Examples:
  funcpack build
  funcpack build netlify/functions --analyze
  funcpack build --watch
  funcpack build --upload -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "Rebuild when function sources change")
	buildCmd.Flags().BoolVar(&buildUpload, "upload", false, "Upload artifacts to the configured S3 bucket")
	buildCmd.Flags().BoolVar(&buildAnalyze, "analyze", false, "Show what each bundle contains")
	buildCmd.Flags().StringVar(&buildMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after each build")
	buildCmd.Flags().StringVar(&buildOutDir, "out", "", "Output directory (overrides functions.output_directory)")
	buildCmd.Flags().IntVar(&buildConcurrency, "concurrency", 0, "Maximum functions built at once (0 = one per CPU)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := newBuilder(GetConfig(), args)
	if err != nil {
		return err
	}
	applyBuildFlags(cmd, b)

	tc := b.cfg.Tracing
	tc.ServiceVersion = Version
	tracer, err := observability.NewTracer(ctx, tc)
	if err != nil {
		return err
	}
	b.tracer = tracer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	if buildWatch {
		return b.watch(ctx)
	}

	_, err = b.run(ctx)
	return err
}

func applyBuildFlags(cmd *cobra.Command, b *builder) {
	if cmd.Flags().Changed("analyze") {
		b.analyze = buildAnalyze
	}
	if cmd.Flags().Changed("concurrency") {
		b.concurrency = buildConcurrency
	}
	if buildOutDir != "" {
		b.outDir = buildOutDir
	}
	if buildMetricsFile != "" {
		b.metricsFile = buildMetricsFile
	}
	b.upload = buildUpload
}

// builder runs builds of one functions directory. In watch mode the same
// builder is reused for every rebuild.
type builder struct {
	cfg         *config.Config
	dir         string
	outDir      string
	analyze     bool
	concurrency int
	upload      bool
	metricsFile string

	metrics   *observability.Metrics
	tracer    *observability.Tracer
	formatter *report.Formatter
	redactor  *redact.Redactor
}

func newBuilder(cfg *config.Config, args []string) (*builder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	dir, err := functionsDir(cfg.Functions, args)
	if err != nil {
		return nil, err
	}
	return &builder{
		cfg:         cfg,
		dir:         dir,
		outDir:      cfg.Functions.OutputDirectory,
		analyze:     cfg.Build.Analyze,
		concurrency: cfg.Build.Concurrency,
		metricsFile: cfg.Metrics.Textfile,
		metrics:     observability.NewMetrics(),
		formatter:   GetFormatter(),
		redactor:    Redactor(),
	}, nil
}

// run performs one build. It returns ErrBuildFailed when any function failed;
// other errors mean the build itself could not run.
func (b *builder) run(ctx context.Context) (*report.Summary, error) {
	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.StartSpan(ctx, "funcpack.build",
			trace.WithAttributes(attribute.String("functions.dir", b.dir)),
		)
		defer span.End()

		if b.tracer.IsEnabled() {
			log.Info().Str("trace_id", observability.ExtractTraceID(ctx)).Msg("Tracing build")
		}
	}

	summary, err := b.build(ctx)
	if err != nil && !errors.Is(err, ErrBuildFailed) {
		observability.RecordError(ctx, b.redactor.Error(err))
	}
	return summary, err
}

func (b *builder) build(ctx context.Context) (*report.Summary, error) {
	ws, err := discover(b.cfg.Functions, b.dir)
	if err != nil {
		return nil, err
	}
	observability.SetSpanAttributes(ctx, attribute.Int("functions.count", len(ws.files)))

	f := b.formatter
	if len(ws.files) == 0 {
		f.PrintInfo(fmt.Sprintf("No functions found in %s", b.dir))
		return &report.Summary{Directory: b.dir}, nil
	}

	progress := !f.Quiet && f.Format == report.FormatTable
	if progress {
		report.BuildStart(f.ErrWriter, Version, relToCwd(b.dir), len(ws.files))
	}

	outDir, err := filepath.Abs(b.outDir)
	if err != nil {
		return nil, err
	}

	pipeline := bundling.NewPipeline(
		bundling.NewEsbuildTranspiler(b.cfg.Build.Timeout),
		ws.project,
		bundling.Options{
			Bundler:     ws.bundler,
			Concurrency: b.concurrency,
			Analyze:     b.analyze,
			OutputDir:   outDir,
		},
		b.metrics,
	)

	rep := pipeline.Build(ctx, ws.fns)
	for _, file := range ws.files {
		if _, ok := ws.failures[file.Name]; ok {
			b.metrics.ObserveFunction(ws.failedResult(file))
		}
	}
	rep.Results = ws.merge(rep.Results)

	store, err := artifact.NewLocalStore(b.outDir)
	if err != nil {
		return nil, err
	}
	artifacts, err := store.WriteAll(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to write artifacts: %w", err)
	}

	var analysis []*report.AnalysisResult
	if b.analyze {
		analysis, err = report.AnalyzeReport(rep)
		if err != nil {
			f.PrintWarning(fmt.Sprintf("Failed to analyze bundles: %v", b.redactor.Error(err)))
		}
	}

	if b.upload && len(artifacts) > 0 {
		if err := b.uploadArtifacts(ctx, rep.BuildID, artifacts); err != nil {
			return nil, err
		}
	}

	b.metrics.RecordBuild(rep)
	if b.metricsFile != "" {
		if err := b.metrics.WriteTextfile(b.metricsFile); err != nil {
			f.PrintWarning(fmt.Sprintf("Failed to write metrics to %s: %v", b.metricsFile, err))
		}
	}

	if progress {
		report.PrintTimers(f.ErrWriter, rep)
	}

	summary := report.Summarize(rep, b.dir, b.redactor)
	summary.Artifacts = artifacts
	summary.Analysis = analysis
	if err := f.PrintBuild(summary); err != nil {
		return nil, err
	}

	log.Debug().
		Str("build_id", rep.BuildID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Str("output", store.Dir()).
		Msg("Build written")

	observability.SetSpanAttributes(ctx,
		attribute.String("build.id", rep.BuildID),
		attribute.Int("build.failed", summary.Failed),
	)
	if summary.Failed > 0 {
		return &summary, ErrBuildFailed
	}
	return &summary, nil
}

func (b *builder) uploadArtifacts(ctx context.Context, buildID string, artifacts []artifact.Artifact) error {
	uploader, err := artifact.NewS3Uploader(b.cfg.Storage)
	if err != nil {
		return err
	}
	if err := uploader.Upload(ctx, buildID, artifacts); err != nil {
		return b.redactor.Error(err)
	}
	b.formatter.PrintInfo(fmt.Sprintf("Uploaded %d artifacts to s3://%s/%s",
		len(artifacts), b.cfg.Storage.Bucket, b.cfg.Storage.ObjectKey(buildID, "")))
	return nil
}

func relToCwd(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	return report.RelPath(wd, path)
}
