package bundling

import (
	"fmt"
	"strings"
)

// Strategy is the approach used to produce one function's output
type Strategy string

const (
	StrategyTranspileOnly      Strategy = "transpile-only"
	StrategyTranspileAndBundle Strategy = "transpile-and-bundle"
	StrategyLegacyPackager     Strategy = "legacy-packager"

	// StrategyUnselected tags failures that happen before a strategy is chosen
	StrategyUnselected Strategy = "unselected"
)

// BundlerOverride is the build-wide bundler choice made by the user
type BundlerOverride string

const (
	BundlerDefault BundlerOverride = ""
	BundlerLegacy  BundlerOverride = "legacy"
)

// ParseBundlerOverride validates a configured bundler name
func ParseBundlerOverride(s string) (BundlerOverride, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "esbuild":
		return BundlerDefault, nil
	case "legacy", "zisi":
		return BundlerLegacy, nil
	default:
		return "", &ConfigurationError{
			Field:  "bundler",
			Reason: fmt.Sprintf("unknown bundler %q (valid: default, legacy)", s),
		}
	}
}

// Rules reported in a Decision
const (
	RuleLegacyOverride        = "legacy-override"
	RuleExplicitBundle        = "explicit-bundle"
	RuleExternalsImplyBundle  = "externals-imply-bundle"
	RuleExplicitNoBundle      = "explicit-no-bundle"
	RuleLegacyRuntimeFallback = "legacy-runtime-fallback"
	RuleNativeDefault         = "native-default"
)

// StrategyInput holds everything the selector looks at
type StrategyInput struct {
	Bundle          *bool
	ExternalModules []string
	Format          ModuleFormat
	Target          Target
	Bundler         BundlerOverride
}

// Decision is the selector's output: the strategy and the rule that chose it
type Decision struct {
	Strategy Strategy
	Rule     string
}

// SelectStrategy maps every input combination to exactly one strategy or to
// a ConfigurationError. It never falls back silently.
func SelectStrategy(in StrategyInput) (Decision, error) {
	switch in.Bundler {
	case BundlerLegacy:
		return selectLegacy(in)
	case BundlerDefault:
	default:
		return Decision{}, &ConfigurationError{
			Field:  "bundler",
			Reason: fmt.Sprintf("no strategy maps to bundler override %q", in.Bundler),
		}
	}

	if in.Format != FormatCommonJS && in.Format != FormatESModule {
		return Decision{}, &ConfigurationError{
			Field:  "module_format",
			Reason: fmt.Sprintf("no strategy maps to module format %q", in.Format),
		}
	}

	hasExternals := len(in.ExternalModules) > 0

	switch {
	case in.Bundle != nil && *in.Bundle:
		return selectBundle(in, RuleExplicitBundle)

	case in.Bundle != nil && !*in.Bundle:
		if hasExternals {
			return Decision{}, &ConfigurationError{
				Field:  "external_modules",
				Reason: "external modules are declared but bundling is disabled",
			}
		}
		return Decision{Strategy: StrategyTranspileOnly, Rule: RuleExplicitNoBundle}, nil

	case hasExternals:
		return selectBundle(in, RuleExternalsImplyBundle)

	case !in.Target.SupportsNativeModules():
		if in.Format == FormatESModule {
			return Decision{}, &ConfigurationError{
				Field:  "module_format",
				Reason: fmt.Sprintf("ES modules need a runtime with native module support, %s has none", in.Target),
			}
		}
		return Decision{Strategy: StrategyLegacyPackager, Rule: RuleLegacyRuntimeFallback}, nil

	default:
		return Decision{Strategy: StrategyTranspileOnly, Rule: RuleNativeDefault}, nil
	}
}

func selectBundle(in StrategyInput, rule string) (Decision, error) {
	if in.Format == FormatESModule && !in.Target.SupportsNativeModules() {
		return Decision{}, &ConfigurationError{
			Field:  "bundle",
			Reason: fmt.Sprintf("bundled ES modules are not supported on %s", in.Target),
		}
	}
	return Decision{Strategy: StrategyTranspileAndBundle, Rule: rule}, nil
}

func selectLegacy(in StrategyInput) (Decision, error) {
	if in.Bundle != nil && *in.Bundle {
		return Decision{}, &ConfigurationError{
			Field:  "bundle",
			Reason: "the legacy packager cannot inline dependencies",
		}
	}
	if in.Format != FormatCommonJS {
		return Decision{}, &ConfigurationError{
			Field:  "module_format",
			Reason: fmt.Sprintf("the legacy packager only emits CommonJS (got: %s)", in.Format),
		}
	}
	return Decision{Strategy: StrategyLegacyPackager, Rule: RuleLegacyOverride}, nil
}
