// Package redact scrubs secret values out of build output.
//
// A Redactor is built from the names of environment variables whose values are
// secret. Every occurrence of one of those values is replaced by Placeholder in
// strings, structured values and line-oriented streams.
package redact

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Placeholder replaces every secret occurrence
const Placeholder = "[secure]"

// Redactor replaces known secret values. A nil Redactor is a no-op.
type Redactor struct {
	pattern *regexp.Regexp
}

// Build reads the named environment variables and returns a redactor for
// their values. Unset or empty variables are ignored.
func Build(keys []string) *Redactor {
	values := make([]string, 0, len(keys))
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			values = append(values, v)
		}
	}
	return New(values)
}

// New returns a redactor for literal secret values
func New(secrets []string) *Redactor {
	seen := make(map[string]bool, len(secrets))
	var quoted []string
	for _, s := range secrets {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		quoted = append(quoted, s)
	}
	if len(quoted) == 0 {
		return &Redactor{}
	}

	// Longest first so a secret containing another one is replaced whole.
	sort.Slice(quoted, func(i, j int) bool {
		if len(quoted[i]) != len(quoted[j]) {
			return len(quoted[i]) > len(quoted[j])
		}
		return quoted[i] < quoted[j]
	})
	for i, s := range quoted {
		quoted[i] = regexp.QuoteMeta(s)
	}

	return &Redactor{pattern: regexp.MustCompile(strings.Join(quoted, "|"))}
}

// Empty reports whether the redactor has nothing to replace
func (r *Redactor) Empty() bool {
	return r == nil || r.pattern == nil
}

// Redact replaces secrets in s
func (r *Redactor) Redact(s string) string {
	if r.Empty() {
		return s
	}
	return r.pattern.ReplaceAllLiteralString(s, Placeholder)
}

// Error redacts an error message. Nil stays nil.
func (r *Redactor) Error(err error) error {
	if err == nil || r.Empty() {
		return err
	}
	msg := r.Redact(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactValue walks maps and slices and redacts every string it finds,
// including map keys. Errors become their redacted message. Numbers, booleans
// and other scalars pass through unchanged.
func (r *Redactor) RedactValue(v any) any {
	if r.Empty() {
		return v
	}

	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return r.Redact(val)
	case error:
		return r.Redact(val.Error())
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = r.Redact(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.RedactValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[r.Redact(k)] = r.Redact(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[r.Redact(k)] = r.RedactValue(item)
		}
		return out
	case fmt.Stringer:
		return r.Redact(val.String())
	default:
		return v
	}
}

// Writer redacts a byte stream line by line. Secrets split across two Write
// calls are still caught because only complete lines are forwarded.
type Writer struct {
	mu       sync.Mutex
	out      io.Writer
	redactor *Redactor
	pending  []byte
}

// NewWriter wraps out
func NewWriter(out io.Writer, redactor *Redactor) *Writer {
	return &Writer{out: out, redactor: redactor}
}

// Write buffers p and forwards every complete line
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		idx := indexNewline(w.pending)
		if idx < 0 {
			break
		}
		line := string(w.pending[:idx])
		w.pending = w.pending[idx+1:]
		if _, err := io.WriteString(w.out, w.redactor.Redact(line)+"\n"); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Close forwards a trailing partial line, terminated with a newline
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	line := string(w.pending)
	w.pending = nil
	_, err := io.WriteString(w.out, w.redactor.Redact(line)+"\n")
	return err
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
