package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

func succeeded(name string, format bundling.ModuleFormat, out *bundling.TranspileResult) bundling.FunctionResult {
	return bundling.FunctionResult{
		Function: bundling.FunctionDescriptor{Name: name},
		Format:   format,
		Decision: bundling.Decision{Strategy: bundling.StrategyTranspileOnly},
		Output:   out,
		State:    bundling.StateSucceeded,
	}
}

func TestLocalStore_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	art, err := store.Write(succeeded("hello", bundling.FormatCommonJS, &bundling.TranspileResult{Code: "module.exports = 1;"}))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "hello.js"), art.Path)
	assert.Empty(t, art.MapPath)
	assert.Equal(t, "cjs", art.Format)
	assert.Equal(t, "transpile-only", art.Strategy)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 1;", string(data))
	assert.Equal(t, int64(len(data)), art.Size)
}

func TestLocalStore_WriteWithSourceMap(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	art, err := store.Write(succeeded("api", bundling.FormatESModule, &bundling.TranspileResult{
		Code:      "export const a = 1;",
		SourceMap: `{"version":3,"sources":["api.ts"]}`,
	}))
	require.NoError(t, err)

	assert.Equal(t, "api.mjs", filepath.Base(art.Path))
	assert.Equal(t, "api.mjs.map", filepath.Base(art.MapPath))

	code, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Contains(t, string(code), "//# sourceMappingURL=api.mjs.map")

	sm, err := os.ReadFile(art.MapPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":3,"sources":["api.ts"]}`, string(sm))
}

func TestLocalStore_RejectsFailures(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write(bundling.FunctionResult{
		Function: bundling.FunctionDescriptor{Name: "broken"},
		State:    bundling.StateFailed,
	})
	assert.Error(t, err)
}

func TestLocalStore_WriteAll(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	report := &bundling.BuildReport{Results: []bundling.FunctionResult{
		succeeded("a", bundling.FormatCommonJS, &bundling.TranspileResult{Code: "1"}),
		{Function: bundling.FunctionDescriptor{Name: "b"}, State: bundling.StateFailed},
		succeeded("c", bundling.FormatESModule, &bundling.TranspileResult{Code: "2"}),
	}}

	artifacts, err := store.WriteAll(report)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "a", artifacts[0].Function)
	assert.Equal(t, "c", artifacts[1].Function)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestLocalStore_WriteAll_RemovesStaleOutputs(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = store.WriteAll(&bundling.BuildReport{Results: []bundling.FunctionResult{
		succeeded("broken", bundling.FormatCommonJS, &bundling.TranspileResult{Code: "1", SourceMap: `{"version":3}`}),
		succeeded("moved", bundling.FormatCommonJS, &bundling.TranspileResult{Code: "2", SourceMap: `{"version":3}`}),
		succeeded("dup", bundling.FormatCommonJS, &bundling.TranspileResult{Code: "3"}),
	}})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "broken.js"))
	require.FileExists(t, filepath.Join(dir, "broken.js.map"))

	// next build: broken fails, moved switches to ESM without a map and dup
	// has a failing duplicate
	artifacts, err := store.WriteAll(&bundling.BuildReport{Results: []bundling.FunctionResult{
		{Function: bundling.FunctionDescriptor{Name: "broken"}, State: bundling.StateFailed},
		succeeded("moved", bundling.FormatESModule, &bundling.TranspileResult{Code: "2"}),
		succeeded("dup", bundling.FormatCommonJS, &bundling.TranspileResult{Code: "3"}),
		{Function: bundling.FunctionDescriptor{Name: "dup"}, State: bundling.StateFailed},
	}})
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.NoFileExists(t, filepath.Join(dir, "broken.js"))
	assert.NoFileExists(t, filepath.Join(dir, "broken.js.map"))
	assert.FileExists(t, filepath.Join(dir, "moved.mjs"))
	assert.NoFileExists(t, filepath.Join(dir, "moved.js"))
	assert.NoFileExists(t, filepath.Join(dir, "moved.js.map"))
	assert.FileExists(t, filepath.Join(dir, "dup.js"))
}

func TestLocalStore_Remove_Missing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Remove("never-built"))
}

func TestNewLocalStore_EmptyDir(t *testing.T) {
	_, err := NewLocalStore("")
	assert.Error(t, err)
}

func TestS3Config(t *testing.T) {
	cfg := S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "functions", Prefix: "/deploys/"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "deploys/build-1/hello.js", cfg.ObjectKey("build-1", "/tmp/out/hello.js"))

	cfg.Prefix = ""
	assert.Equal(t, "build-1/hello.js.map", cfg.ObjectKey("build-1", "hello.js.map"))

	assert.Error(t, S3Config{Endpoint: "localhost:9000"}.Validate())

	_, err := NewS3Uploader(S3Config{})
	assert.Error(t, err)
}

func TestNewS3Uploader(t *testing.T) {
	// the client is created lazily; no network access happens here
	u, err := NewS3Uploader(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "functions"})
	require.NoError(t, err)
	assert.NotNil(t, u.client)
	assert.Equal(t, "text/javascript", contentType("a.js"))
	assert.Equal(t, "application/json", contentType("a.js.map"))
}
