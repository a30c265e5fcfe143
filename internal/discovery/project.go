package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/funcpack/internal/bundling"
)

type packageJSON struct {
	Type string `json:"type"`
}

// LoadProject reads the project-level inputs for a functions directory: the
// "type" field of the nearest package.json and the raw nearest tsconfig.json.
// Both are looked up from dir towards the filesystem root. A non-empty
// configured format is the project's declared format and wins over
// package.json.
func LoadProject(dir, configuredFormat string) (bundling.ProjectMetadata, error) {
	var project bundling.ProjectMetadata

	if configuredFormat != "" {
		format, err := bundling.ParseModuleFormat(configuredFormat)
		if err != nil {
			return project, err
		}
		project.ModuleFormat = format
		log.Debug().Str("module_format", string(format)).Msg("Project module format configured")
	} else if path := findUp(dir, "package.json"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return project, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var pkg packageJSON
		if err := json.Unmarshal(data, &pkg); err != nil {
			return project, &bundling.ConfigurationError{
				Field:  "package.json",
				Reason: fmt.Sprintf("invalid JSON in %s", path),
				Err:    err,
			}
		}
		format, err := bundling.ParseModuleFormat(pkg.Type)
		if err != nil {
			return project, err
		}
		project.ModuleFormat = format
		log.Debug().Str("file", path).Str("type", pkg.Type).Msg("Project package.json loaded")
	}

	if path := findUp(dir, "tsconfig.json"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return project, fmt.Errorf("failed to read %s: %w", path, err)
		}
		// esbuild parses tsconfig itself, including comments and trailing
		// commas, so the content is passed through untouched.
		project.TsConfigRaw = string(data)
		project.TsConfigDir = filepath.Dir(path)
		log.Debug().Str("file", path).Msg("Project tsconfig.json loaded")
	}

	return project, nil
}

func findUp(dir, name string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(abs, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return ""
		}
		abs = parent
	}
}
