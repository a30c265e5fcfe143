package bundling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid or unresolvable function inputs
	ErrConfiguration = errors.New("configuration error")
	// ErrTranspilation marks sources rejected by the compiler backend
	ErrTranspilation = errors.New("transpilation error")
	// ErrUnsupportedTarget marks target/format pairs the backend cannot produce
	ErrUnsupportedTarget = errors.New("unsupported target")
)

// ErrorClass groups failures for reporting
type ErrorClass string

const (
	ClassConfiguration ErrorClass = "configuration"
	ClassTranspilation ErrorClass = "transpilation"
	ClassInternal      ErrorClass = "internal"
)

// Classify returns the reporting class of err. Unsupported targets count as
// configuration failures.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrUnsupportedTarget), errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrTranspilation):
		return ClassTranspilation
	default:
		return ClassInternal
	}
}

// Diagnostic is one compiler message, kept verbatim
type Diagnostic struct {
	Text     string `json:"text" yaml:"text"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int    `json:"column,omitempty" yaml:"column,omitempty"`
	LineText string `json:"line_text,omitempty" yaml:"line_text,omitempty"`
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return d.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Text)
}

// ConfigurationError reports an input combination that cannot be built
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// TranspilationError reports that the backend rejected a source file.
// Err is the backend's own error and is never discarded.
type TranspilationError struct {
	Path        string
	Diagnostics []Diagnostic
	Err         error
}

func (e *TranspilationError) Error() string {
	return "transpilation failed: " + summarize(e.Diagnostics, e.Err)
}

func (e *TranspilationError) Unwrap() error { return e.Err }

func (e *TranspilationError) Is(target error) bool { return target == ErrTranspilation }

// UnsupportedTargetError reports a target/format pair with no backend support.
// It matches both ErrUnsupportedTarget and ErrTranspilation.
type UnsupportedTargetError struct {
	Target      Target
	Format      ModuleFormat
	Diagnostics []Diagnostic
	Err         error
}

func (e *UnsupportedTargetError) Error() string {
	msg := fmt.Sprintf("target %s does not support %s output", e.Target, e.Format)
	if len(e.Diagnostics) > 0 || e.Err != nil {
		msg += ": " + summarize(e.Diagnostics, e.Err)
	}
	return msg
}

func (e *UnsupportedTargetError) Unwrap() error { return e.Err }

func (e *UnsupportedTargetError) Is(target error) bool {
	return target == ErrUnsupportedTarget || target == ErrTranspilation
}

func summarize(diags []Diagnostic, cause error) string {
	if len(diags) == 0 {
		if cause != nil {
			return cause.Error()
		}
		return "unknown error"
	}
	parts := make([]string, 0, len(diags))
	for _, d := range diags {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "; ")
}

// BundlingError attributes a failure to a function. The wrapped error keeps
// its classification, so errors.Is and errors.As see through it.
type BundlingError struct {
	FunctionName string
	Runtime      Runtime
	Strategy     Strategy
	Target       string
	Err          error
}

func (e *BundlingError) Error() string {
	return fmt.Sprintf("function %s (runtime: %s, strategy: %s): %v", e.FunctionName, e.Runtime, e.Strategy, e.Err)
}

func (e *BundlingError) Unwrap() error { return e.Err }

// Enrich wraps err with function attribution. Nil stays nil, and an error that
// already carries attribution is returned unchanged.
func Enrich(err error, functionName string, runtime Runtime, strategy Strategy, target string) error {
	if err == nil {
		return nil
	}
	var existing *BundlingError
	if errors.As(err, &existing) {
		return err
	}
	if runtime == "" {
		runtime = RuntimeJavaScript
	}
	if strategy == "" {
		strategy = StrategyUnselected
	}
	return &BundlingError{
		FunctionName: functionName,
		Runtime:      runtime,
		Strategy:     strategy,
		Target:       target,
		Err:          err,
	}
}

// Diagnostics returns the compiler diagnostics carried anywhere in err's chain
func Diagnostics(err error) []Diagnostic {
	var te *TranspilationError
	if errors.As(err, &te) {
		return te.Diagnostics
	}
	var ue *UnsupportedTargetError
	if errors.As(err, &ue) {
		return ue.Diagnostics
	}
	return nil
}
