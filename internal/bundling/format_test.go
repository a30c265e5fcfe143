package bundling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModuleFormat_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		override   ModuleFormat
		project    ModuleFormat
		wantFormat ModuleFormat
		wantSource FormatSource
	}{
		{"default", "/fns/hello.ts", "", "", FormatCommonJS, FormatFromDefault},
		{"plain js defaults to cjs", "/fns/hello.js", "", "", FormatCommonJS, FormatFromDefault},
		{"mjs extension", "/fns/hello.mjs", "", "", FormatESModule, FormatFromExtension},
		{"mts extension", "/fns/hello.mts", "", "", FormatESModule, FormatFromExtension},
		{"cjs extension", "/fns/hello.cjs", "", "", FormatCommonJS, FormatFromExtension},
		{"cts extension", "/fns/hello.CTS", "", "", FormatCommonJS, FormatFromExtension},
		{"project beats extension", "/fns/hello.cjs", "", FormatESModule, FormatESModule, FormatFromProject},
		{"project beats default", "/fns/hello.ts", "", FormatESModule, FormatESModule, FormatFromProject},
		{"function beats project", "/fns/hello.ts", FormatCommonJS, FormatESModule, FormatCommonJS, FormatFromFunction},
		{"function beats extension", "/fns/hello.mjs", FormatCommonJS, "", FormatCommonJS, FormatFromFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := FunctionDescriptor{Name: "hello", Path: tt.path, ModuleFormat: tt.override}
			format, source := ResolveModuleFormat(fn, ProjectMetadata{ModuleFormat: tt.project})
			assert.Equal(t, tt.wantFormat, format)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestResolveModuleFormat_AlwaysOneValue(t *testing.T) {
	formats := []ModuleFormat{"", FormatCommonJS, FormatESModule}
	exts := []string{".js", ".ts", ".mjs", ".cjs", ".mts", ".cts", ".jsx", ""}

	for _, override := range formats {
		for _, project := range formats {
			for _, ext := range exts {
				name := fmt.Sprintf("%s/%s/%s", override, project, ext)
				fn := FunctionDescriptor{Name: "fn", Path: "/fns/fn" + ext, ModuleFormat: override}
				format, _ := ResolveModuleFormat(fn, ProjectMetadata{ModuleFormat: project})
				assert.Contains(t, []ModuleFormat{FormatCommonJS, FormatESModule}, format, name)
			}
		}
	}
}

func TestParseModuleFormat(t *testing.T) {
	tests := []struct {
		in   string
		want ModuleFormat
	}{
		{"", ""},
		{"cjs", FormatCommonJS},
		{"CommonJS", FormatCommonJS},
		{"esm", FormatESModule},
		{"module", FormatESModule},
		{" ES ", FormatESModule},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModuleFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseModuleFormat("amd")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}
