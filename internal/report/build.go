package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fluxbase-eu/funcpack/internal/artifact"
	"github.com/fluxbase-eu/funcpack/internal/bundling"
	"github.com/fluxbase-eu/funcpack/internal/redact"
)

// FunctionRow is the reported view of one function result. Paths are relative
// to the build directory and error text is redacted.
type FunctionRow struct {
	Name         string                `json:"name" yaml:"name"`
	Path         string                `json:"path" yaml:"path"`
	State        string                `json:"state" yaml:"state"`
	Strategy     string                `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Rule         string                `json:"rule,omitempty" yaml:"rule,omitempty"`
	Target       string                `json:"target,omitempty" yaml:"target,omitempty"`
	Format       string                `json:"format,omitempty" yaml:"format,omitempty"`
	FormatSource string                `json:"format_source,omitempty" yaml:"format_source,omitempty"`
	DurationMs   int64                 `json:"duration_ms" yaml:"duration_ms"`
	OutputBytes  int                   `json:"output_bytes,omitempty" yaml:"output_bytes,omitempty"`
	ErrorClass   string                `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	Error        string                `json:"error,omitempty" yaml:"error,omitempty"`
	Diagnostics  []bundling.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Summary is the reported view of a whole build
type Summary struct {
	BuildID    string              `json:"build_id" yaml:"build_id"`
	Directory  string              `json:"directory" yaml:"directory"`
	Functions  int                 `json:"functions" yaml:"functions"`
	Succeeded  int                 `json:"succeeded" yaml:"succeeded"`
	Failed     int                 `json:"failed" yaml:"failed"`
	DurationMs int64               `json:"duration_ms" yaml:"duration_ms"`
	Results    []FunctionRow       `json:"results" yaml:"results"`
	Artifacts  []artifact.Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Analysis   []*AnalysisResult   `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// Row converts one result
func Row(res bundling.FunctionResult, baseDir string, r *redact.Redactor) FunctionRow {
	row := FunctionRow{
		Name:         res.Function.Name,
		Path:         RelPath(baseDir, res.Function.Path),
		State:        string(res.State),
		Strategy:     string(res.Decision.Strategy),
		Rule:         res.Decision.Rule,
		Format:       string(res.Format),
		FormatSource: string(res.FormatSource),
		DurationMs:   res.Duration.Milliseconds(),
	}
	if res.Target.Major != 0 {
		row.Target = res.Target.String()
	}
	if res.Output != nil {
		row.OutputBytes = len(res.Output.Code)
	}
	if res.Err != nil {
		row.ErrorClass = string(bundling.Classify(res.Err))
		row.Error = r.Redact(res.Err.Error())
		for _, d := range bundling.Diagnostics(res.Err) {
			d.File = RelPath(baseDir, d.File)
			d.Text = r.Redact(d.Text)
			d.LineText = r.Redact(d.LineText)
			row.Diagnostics = append(row.Diagnostics, d)
		}
	}
	return row
}

// Summarize builds the reported view of a build
func Summarize(report *bundling.BuildReport, baseDir string, r *redact.Redactor) Summary {
	s := Summary{
		BuildID:    report.BuildID,
		Directory:  baseDir,
		Functions:  len(report.Results),
		Succeeded:  report.SucceededCount(),
		Failed:     len(report.Failed()),
		DurationMs: report.Duration.Milliseconds(),
		Results:    make([]FunctionRow, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		s.Results = append(s.Results, Row(res, baseDir, r))
	}
	return s
}

// PrintBuild renders a build summary. Table mode prints a table, per-function
// failure details and a closing banner; JSON and YAML print the summary.
func (f *Formatter) PrintBuild(s Summary) error {
	if f.Quiet {
		return nil
	}
	if f.Format != FormatTable {
		return f.Print(s)
	}

	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		rows = append(rows, []string{
			r.Name,
			r.State,
			dash(r.Strategy),
			dash(r.Target),
			dash(r.Format),
			outputSize(r),
			fmt.Sprintf("%dms", r.DurationMs),
		})
	}
	f.PrintTable(TableData{
		Headers: []string{"FUNCTION", "STATE", "STRATEGY", "TARGET", "FORMAT", "SIZE", "DURATION"},
		Rows:    rows,
	})

	for _, a := range s.Analysis {
		DisplayAnalysis(f.Writer, a, false)
	}
	if len(s.Analysis) > 1 {
		DisplaySummary(f.Writer, s.Analysis)
	}

	if s.Failed > 0 {
		var messages []string
		for _, r := range s.Results {
			if r.Error != "" {
				messages = append(messages, failureText(r))
			}
		}
		ErrorBanner(f.Writer, messages...)
		return nil
	}
	SuccessBanner(f.Writer, s.Succeeded)
	return nil
}

// PrintPlan renders the dry-run view of functions: how each one would be built
func (f *Formatter) PrintPlan(rows []FunctionRow) error {
	if f.Format != FormatTable {
		return f.Print(rows)
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		status := dash(r.Rule)
		if r.Error != "" {
			status = r.Error
		}
		table = append(table, []string{
			r.Name,
			r.Path,
			dash(r.Target),
			formatWithSource(r),
			dash(r.Strategy),
			status,
		})
	}
	f.PrintTable(TableData{
		Headers: []string{"FUNCTION", "PATH", "TARGET", "FORMAT", "STRATEGY", "RULE"},
		Rows:    table,
	})
	return nil
}

// PrintTimers writes one timer or failure line per result
func PrintTimers(w io.Writer, report *bundling.BuildReport) {
	for _, res := range report.Results {
		if res.Succeeded() {
			TimerLine(w, res.Function.Name, res.Duration)
		} else {
			FailureLine(w, res.Function.Name, res.Duration)
		}
	}
}

func failureText(r FunctionRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s error)\n  %s", r.Name, r.ErrorClass, r.Error)
	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "\n    %s", d.String())
		if d.LineText != "" {
			fmt.Fprintf(&b, "\n      %s", strings.TrimSpace(d.LineText))
		}
	}
	return b.String()
}

func formatWithSource(r FunctionRow) string {
	if r.Format == "" {
		return "-"
	}
	if r.FormatSource == "" {
		return r.Format
	}
	return fmt.Sprintf("%s (%s)", r.Format, r.FormatSource)
}

func outputSize(r FunctionRow) string {
	if r.State != string(bundling.StateSucceeded) {
		return "-"
	}
	return FormatBytes(r.OutputBytes)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
