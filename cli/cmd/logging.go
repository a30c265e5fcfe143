package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/fluxbase-eu/funcpack/internal/config"
	"github.com/fluxbase-eu/funcpack/internal/redact"
)

// setupLogging installs the global logger. Every line passes through the
// redactor before it reaches stderr. The returned function flushes it.
func setupLogging(lc config.LogConfig, debug bool, r *redact.Redactor) (func() error, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return nil, err
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := redact.NewWriter(os.Stderr, r)
	log.Logger = zerolog.New(logWriter(lc.Format, out, isTerminal(os.Stderr))).With().Timestamp().Logger()

	return out.Close, nil
}

func logWriter(format string, out io.Writer, tty bool) io.Writer {
	switch format {
	case "json":
		return out
	case "console":
		return zerolog.ConsoleWriter{Out: out, NoColor: !tty, TimeFormat: time.RFC3339}
	default:
		if tty {
			return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
		return out
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
