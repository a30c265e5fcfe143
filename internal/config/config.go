package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/funcpack/internal/artifact"
	"github.com/fluxbase-eu/funcpack/internal/bundling"
	"github.com/fluxbase-eu/funcpack/internal/discovery"
	"github.com/fluxbase-eu/funcpack/internal/observability"
)

// Config represents the funcpack configuration
type Config struct {
	Functions FunctionsConfig            `mapstructure:"functions"`
	Build     BuildConfig                `mapstructure:"build"`
	Log       LogConfig                  `mapstructure:"log"`
	Metrics   MetricsConfig              `mapstructure:"metrics"`
	Tracing   observability.TracerConfig `mapstructure:"tracing"`
	Storage   artifact.S3Config          `mapstructure:"storage"`
	Redact    RedactConfig               `mapstructure:"redact"`
}

// FunctionsConfig contains the function sources and their default build settings
type FunctionsConfig struct {
	Directory       string   `mapstructure:"directory"`
	OutputDirectory string   `mapstructure:"output_directory"`
	NodeVersion     string   `mapstructure:"node_version"`
	ModuleFormat    string   `mapstructure:"module_format"` // cjs, esm or empty for auto
	Bundler         string   `mapstructure:"bundler"`       // "" (esbuild) or legacy
	Bundle          *bool    `mapstructure:"bundle"`        // unset lets the selector decide
	Sourcemap       bool     `mapstructure:"sourcemap"`
	ExternalModules []string `mapstructure:"external_modules"`

	// Overrides are keyed by function name. Keys are case-insensitive.
	Overrides map[string]FunctionSettings `mapstructure:"overrides"`
}

// FunctionSettings overrides the defaults for a single function
type FunctionSettings struct {
	NodeVersion     string   `mapstructure:"node_version"`
	ModuleFormat    string   `mapstructure:"module_format"`
	Bundle          *bool    `mapstructure:"bundle"`
	Sourcemap       *bool    `mapstructure:"sourcemap"`
	ExternalModules []string `mapstructure:"external_modules"`
}

// BuildConfig contains build execution settings
type BuildConfig struct {
	Concurrency   int           `mapstructure:"concurrency"` // 0 = one worker per CPU
	Analyze       bool          `mapstructure:"analyze"`
	Timeout       time.Duration `mapstructure:"timeout"` // per function
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, console or json
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // node_exporter textfile path; empty disables
}

// RedactConfig lists environment variables whose values never appear in output
type RedactConfig struct {
	SecretKeys []string `mapstructure:"secret_keys"`
}

// Load loads configuration from file and environment variables. An empty
// configFile searches for funcpack.yaml in the usual places.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("funcpack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("FUNCPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Keys without a default are only seen by Unmarshal when bound explicitly
	for _, key := range []string{"functions.bundle", "storage.access_key", "storage.secret_key"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Functions defaults
	v.SetDefault("functions.directory", "functions")
	v.SetDefault("functions.output_directory", ".funcpack/functions")
	v.SetDefault("functions.node_version", "")
	v.SetDefault("functions.module_format", "")
	v.SetDefault("functions.bundler", "")
	v.SetDefault("functions.sourcemap", false)
	v.SetDefault("functions.external_modules", []string{})

	// Build defaults
	v.SetDefault("build.concurrency", 0)
	v.SetDefault("build.analyze", false)
	v.SetDefault("build.timeout", bundling.DefaultTranspileTimeout)
	v.SetDefault("build.watch_debounce", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	// Metrics defaults
	v.SetDefault("metrics.textfile", "")

	// Tracing defaults
	tracing := observability.DefaultTracerConfig()
	v.SetDefault("tracing.enabled", tracing.Enabled)
	v.SetDefault("tracing.endpoint", tracing.Endpoint)
	v.SetDefault("tracing.service_name", tracing.ServiceName)
	v.SetDefault("tracing.environment", tracing.Environment)
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("tracing.insecure", tracing.Insecure)

	// Storage defaults
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.prefix", "functions")
	v.SetDefault("storage.use_ssl", true)

	// Redaction defaults
	v.SetDefault("redact.secret_keys", []string{})
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Functions.Validate(); err != nil {
		return err
	}

	if c.Build.Concurrency < 0 {
		return fmt.Errorf("build.concurrency cannot be negative")
	}
	if c.Build.Timeout <= 0 {
		return fmt.Errorf("build.timeout must be positive")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("log format must be 'auto', 'console' or 'json' (got: %s)", c.Log.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}

// Validate checks the function defaults and every override
func (fc *FunctionsConfig) Validate() error {
	if fc.Directory == "" {
		return fmt.Errorf("functions.directory cannot be empty")
	}
	if fc.OutputDirectory == "" {
		return fmt.Errorf("functions.output_directory cannot be empty")
	}
	if filepath.Clean(fc.Directory) == filepath.Clean(fc.OutputDirectory) {
		return fmt.Errorf("functions.output_directory must differ from functions.directory")
	}
	if _, err := bundling.ParseBundlerOverride(fc.Bundler); err != nil {
		return err
	}
	if err := validateSettings("functions", fc.NodeVersion, fc.ModuleFormat); err != nil {
		return err
	}
	for name, o := range fc.Overrides {
		if err := validateSettings("functions.overrides."+name, o.NodeVersion, o.ModuleFormat); err != nil {
			return err
		}
	}
	return nil
}

func validateSettings(prefix, nodeVersion, moduleFormat string) error {
	if _, err := bundling.ParseModuleFormat(moduleFormat); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	if nodeVersion != "" {
		if _, err := bundling.ResolveTarget(nodeVersion); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

// Defaults returns the settings every function starts from. ModuleFormat is
// a project-level setting and is passed to discovery.LoadProject instead.
func (fc *FunctionsConfig) Defaults() discovery.Settings {
	s := discovery.Settings{
		NodeVersion:     fc.NodeVersion,
		Bundle:          fc.Bundle,
		ExternalModules: fc.ExternalModules,
	}
	if fc.Sourcemap {
		s.Sourcemap = bundling.BoolPtr(true)
	}
	return s
}

// OverrideSettings returns the per-function overrides keyed by lowercase name
func (fc *FunctionsConfig) OverrideSettings() map[string]discovery.Settings {
	out := make(map[string]discovery.Settings, len(fc.Overrides))
	for name, o := range fc.Overrides {
		out[strings.ToLower(name)] = discovery.Settings{
			NodeVersion:     o.NodeVersion,
			ModuleFormat:    o.ModuleFormat,
			Bundle:          o.Bundle,
			Sourcemap:       o.Sourcemap,
			ExternalModules: o.ExternalModules,
		}
	}
	return out
}
