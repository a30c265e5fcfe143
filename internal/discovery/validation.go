package discovery

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// Only allow alphanumeric characters, hyphens, and underscores
	validFunctionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Names that collide with entry file conventions
	reservedNames = map[string]bool{
		"index": true,
		"_":     true,
		"-":     true,
	}
)

// ValidateFunctionName checks that a function name is safe to use as an
// output file name
func ValidateFunctionName(name string) error {
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}

	if len(name) > 64 {
		return fmt.Errorf("function name too long (max 64 characters), got %d", len(name))
	}

	if reservedNames[name] {
		return fmt.Errorf("function name '%s' is reserved", name)
	}

	if !validFunctionNameRegex.MatchString(name) {
		return fmt.Errorf("function name must contain only letters, numbers, hyphens, and underscores (got: %s)", name)
	}

	return nil
}

// withinDir reports whether path resolves inside dir
func withinDir(dir, path string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve functions directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve function path: %w", err)
	}
	if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("function path is outside of functions directory: %s", path)
	}
	return absPath, nil
}
