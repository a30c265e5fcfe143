package bundling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectStrategy(t *testing.T) {
	node18 := Target{Major: 18}
	node10 := Target{Major: 10}

	tests := []struct {
		name         string
		in           StrategyInput
		wantStrategy Strategy
		wantRule     string
		wantErr      bool
	}{
		{
			name:         "plain function on modern runtime",
			in:           StrategyInput{Format: FormatCommonJS, Target: node18},
			wantStrategy: StrategyTranspileOnly,
			wantRule:     RuleNativeDefault,
		},
		{
			name:         "explicit bundle",
			in:           StrategyInput{Bundle: BoolPtr(true), Format: FormatESModule, Target: node18, ExternalModules: []string{"left-pad"}},
			wantStrategy: StrategyTranspileAndBundle,
			wantRule:     RuleExplicitBundle,
		},
		{
			name:         "externals imply bundling",
			in:           StrategyInput{Format: FormatCommonJS, Target: node18, ExternalModules: []string{"sharp"}},
			wantStrategy: StrategyTranspileAndBundle,
			wantRule:     RuleExternalsImplyBundle,
		},
		{
			name:         "explicit no bundle",
			in:           StrategyInput{Bundle: BoolPtr(false), Format: FormatESModule, Target: node18},
			wantStrategy: StrategyTranspileOnly,
			wantRule:     RuleExplicitNoBundle,
		},
		{
			name:    "externals with bundling disabled",
			in:      StrategyInput{Bundle: BoolPtr(false), Format: FormatCommonJS, Target: node18, ExternalModules: []string{"sharp"}},
			wantErr: true,
		},
		{
			name:         "old runtime falls back to legacy",
			in:           StrategyInput{Format: FormatCommonJS, Target: node10},
			wantStrategy: StrategyLegacyPackager,
			wantRule:     RuleLegacyRuntimeFallback,
		},
		{
			name:    "old runtime cannot take esm",
			in:      StrategyInput{Format: FormatESModule, Target: node10},
			wantErr: true,
		},
		{
			name:    "old runtime cannot take bundled esm",
			in:      StrategyInput{Bundle: BoolPtr(true), Format: FormatESModule, Target: node10},
			wantErr: true,
		},
		{
			name:         "old runtime can take bundled cjs",
			in:           StrategyInput{Bundle: BoolPtr(true), Format: FormatCommonJS, Target: node10},
			wantStrategy: StrategyTranspileAndBundle,
			wantRule:     RuleExplicitBundle,
		},
		{
			name:         "legacy override",
			in:           StrategyInput{Format: FormatCommonJS, Target: node18, Bundler: BundlerLegacy},
			wantStrategy: StrategyLegacyPackager,
			wantRule:     RuleLegacyOverride,
		},
		{
			name:    "legacy override cannot bundle",
			in:      StrategyInput{Bundle: BoolPtr(true), Format: FormatCommonJS, Target: node18, Bundler: BundlerLegacy},
			wantErr: true,
		},
		{
			name:    "legacy override cannot emit esm",
			in:      StrategyInput{Format: FormatESModule, Target: node18, Bundler: BundlerLegacy},
			wantErr: true,
		},
		{
			name:    "unknown bundler",
			in:      StrategyInput{Format: FormatCommonJS, Target: node18, Bundler: "webpack"},
			wantErr: true,
		},
		{
			name:    "unknown format",
			in:      StrategyInput{Format: "amd", Target: node18},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := SelectStrategy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfiguration)
				assert.Empty(t, decision.Strategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStrategy, decision.Strategy)
			assert.Equal(t, tt.wantRule, decision.Rule)
		})
	}
}

// Every combination yields exactly one strategy with a named rule, or a
// configuration error; nothing falls through.
func TestSelectStrategy_Total(t *testing.T) {
	bundles := []*bool{nil, BoolPtr(true), BoolPtr(false)}
	externals := [][]string{nil, {"left-pad"}}
	formats := []ModuleFormat{FormatCommonJS, FormatESModule, "", "umd"}
	targets := []Target{{Major: 8}, {Major: 12}, {Major: 14}, {Major: 22}}
	bundlers := []BundlerOverride{BundlerDefault, BundlerLegacy, "rollup"}
	valid := map[Strategy]bool{
		StrategyTranspileOnly:      true,
		StrategyTranspileAndBundle: true,
		StrategyLegacyPackager:     true,
	}

	for _, b := range bundles {
		for _, ext := range externals {
			for _, f := range formats {
				for _, tg := range targets {
					for _, bu := range bundlers {
						in := StrategyInput{Bundle: b, ExternalModules: ext, Format: f, Target: tg, Bundler: bu}
						name := fmt.Sprintf("%+v", in)

						decision, err := SelectStrategy(in)
						if err != nil {
							assert.ErrorIs(t, err, ErrConfiguration, name)
							continue
						}
						assert.True(t, valid[decision.Strategy], name)
						assert.NotEmpty(t, decision.Rule, name)
					}
				}
			}
		}
	}
}

func TestParseBundlerOverride(t *testing.T) {
	for _, in := range []string{"", "default", "esbuild", "ESBUILD"} {
		got, err := ParseBundlerOverride(in)
		require.NoError(t, err)
		assert.Equal(t, BundlerDefault, got)
	}
	for _, in := range []string{"legacy", "zisi"} {
		got, err := ParseBundlerOverride(in)
		require.NoError(t, err)
		assert.Equal(t, BundlerLegacy, got)
	}
	_, err := ParseBundlerOverride("webpack")
	assert.ErrorIs(t, err, ErrConfiguration)
}
