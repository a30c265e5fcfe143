package observability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

func TestMetrics_ObserveFunction(t *testing.T) {
	m := NewMetrics()

	m.ObserveFunction(bundling.FunctionResult{
		Decision: bundling.Decision{Strategy: bundling.StrategyTranspileOnly},
		Output:   &bundling.TranspileResult{Code: "module.exports = 1", Warnings: []bundling.Diagnostic{{Text: "w"}}},
		State:    bundling.StateSucceeded,
		Duration: 20 * time.Millisecond,
	})
	m.ObserveFunction(bundling.FunctionResult{
		Decision: bundling.Decision{Strategy: bundling.StrategyTranspileOnly},
		Err:      &bundling.TranspilationError{},
		State:    bundling.StateFailed,
	})
	m.ObserveFunction(bundling.FunctionResult{
		Err:   &bundling.ConfigurationError{Field: "node_version"},
		State: bundling.StateFailed,
	})
	m.ObserveFunction(bundling.FunctionResult{
		Decision: bundling.Decision{Strategy: bundling.StrategyTranspileAndBundle},
		Err:      errors.New("disk full"),
		State:    bundling.StateFailed,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.functionsTotal.WithLabelValues("transpile-only", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.functionsTotal.WithLabelValues("transpile-only", "transpilation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.functionsTotal.WithLabelValues("unselected", "configuration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.functionsTotal.WithLabelValues("transpile-and-bundle", "internal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warningsTotal.WithLabelValues("transpile-only")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.functionDuration))
}

func TestMetrics_RecordBuild(t *testing.T) {
	m := NewMetrics()

	m.RecordBuild(&bundling.BuildReport{
		Results:  []bundling.FunctionResult{{State: bundling.StateSucceeded}},
		Duration: time.Second,
	})
	m.RecordBuild(&bundling.BuildReport{
		Results: []bundling.FunctionResult{{State: bundling.StateFailed}},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("failed")))
	assert.Greater(t, testutil.ToFloat64(m.lastBuildStamp), 0.0)
}

func TestMetrics_Independent(t *testing.T) {
	// Two instances in one process must not panic on duplicate registration.
	a := NewMetrics()
	b := NewMetrics()
	a.RecordBuild(&bundling.BuildReport{})

	assert.Equal(t, 1.0, testutil.ToFloat64(a.buildsTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.buildsTotal.WithLabelValues("success")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveFunction(bundling.FunctionResult{
		Decision: bundling.Decision{Strategy: bundling.StrategyLegacyPackager},
		Output:   &bundling.TranspileResult{Code: "x"},
		State:    bundling.StateSucceeded,
	})

	path := filepath.Join(t.TempDir(), "funcpack.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `funcpack_functions_total{outcome="success",strategy="legacy-packager"} 1`)
	assert.Contains(t, string(data), "# HELP funcpack_function_output_bytes")
}

func TestMetrics_WriteTextfile_BadPath(t *testing.T) {
	m := NewMetrics()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
