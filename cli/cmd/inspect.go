package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
	"github.com/fluxbase-eu/funcpack/internal/report"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [directory]",
	Short: "Show how each function would be built",
	Long: `Resolve the target, module format and bundling strategy of every function
without compiling anything.

Examples:
  funcpack inspect
  funcpack inspect netlify/functions -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	dir, err := functionsDir(cfg.Functions, args)
	if err != nil {
		return err
	}
	ws, err := discover(cfg.Functions, dir)
	if err != nil {
		return err
	}

	f := GetFormatter()
	if len(ws.files) == 0 {
		f.PrintInfo(fmt.Sprintf("No functions found in %s", dir))
		return nil
	}

	// The transpiler is never invoked while planning
	pipeline := bundling.NewPipeline(nil, ws.project, bundling.Options{Bundler: ws.bundler})

	results := make([]bundling.FunctionResult, 0, len(ws.fns))
	for _, fn := range ws.fns {
		results = append(results, pipeline.Plan(fn))
	}
	results = ws.merge(results)

	rows := make([]report.FunctionRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, report.Row(res, dir, Redactor()))
	}
	return f.PrintPlan(rows)
}
