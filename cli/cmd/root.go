// Package cmd provides the Cobra commands for the funcpack CLI.
package cmd

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/funcpack/internal/config"
	"github.com/fluxbase-eu/funcpack/internal/redact"
	"github.com/fluxbase-eu/funcpack/internal/report"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	cfg       *config.Config
	redactor  *redact.Redactor
	formatter *report.Formatter
	closeLog  func() error
)

// ErrBuildFailed is returned when at least one function failed to build. The
// details have already been reported.
var ErrBuildFailed = errors.New("build failed")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "funcpack",
	Short: "funcpack - bundle serverless functions for Node.js",
	Long: `funcpack turns a directory of JavaScript and TypeScript functions into
deployable Node.js code.

For each function it resolves the Node.js target and module format, picks a
bundling strategy and compiles the source with esbuild. A failing function
never stops the others.

Get started:
  funcpack inspect functions   Show how each function would be built
  funcpack build functions     Build every function`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./funcpack.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(inspectCmd)
}

// setup loads configuration and initializes logging, redaction and output
// for every command except version
func setup(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd || cmd == completionCmd {
		return nil
	}

	format, err := report.ParseFormat(outputFmt)
	if err != nil {
		return err
	}

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	redactor = redact.Build(cfg.Redact.SecretKeys)
	closeLog, err = setupLogging(cfg.Log, debug, redactor)
	if err != nil {
		return err
	}

	formatter = report.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()

	log.Debug().
		Str("version", Version).
		Str("commit", Commit).
		Msg("funcpack initialized")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if closeLog != nil {
		return closeLog()
	}
	return nil
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *report.Formatter {
	if formatter == nil {
		format, _ := report.ParseFormat(outputFmt)
		formatter = report.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}

// GetConfig returns the loaded configuration (for use by subcommands)
func GetConfig() *config.Config {
	return cfg
}

// PrintError reports an error returned by Execute with secrets redacted.
// ErrBuildFailed is not printed since each failed function was already reported.
func PrintError(err error) {
	if err == nil || errors.Is(err, ErrBuildFailed) {
		return
	}
	GetFormatter().PrintError(Redactor().Error(err).Error())
}

// Redactor returns the secret redactor; it is never nil
func Redactor() *redact.Redactor {
	if redactor == nil {
		return redact.New(nil)
	}
	return redactor
}
