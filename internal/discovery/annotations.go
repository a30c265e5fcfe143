package discovery

import (
	"regexp"
	"strings"
)

// Annotations are build settings declared in a function's own source with
// @funcpack: comments. Nil and empty fields were not declared.
//
//	// @funcpack:node-version 20
//	// @funcpack:format esm
//	// @funcpack:bundle
//	// @funcpack:external sharp, left-pad
//	// @funcpack:sourcemap
type Annotations struct {
	NodeVersion     *string
	ModuleFormat    *string
	Bundle          *bool
	Sourcemap       *bool
	ExternalModules []string
}

// annotationPrefix matches the start of a comment line: //, /*, or a JSDoc " * "
const annotationPrefix = `(?m)^\s*(?://|/\*|\*)\s*@funcpack:`

var (
	nodeVersionPattern = regexp.MustCompile(annotationPrefix + `node-version\s+(.+?)\s*(?:\*/)?\s*$`)
	formatPattern      = regexp.MustCompile(annotationPrefix + `format\s+(\S+?)\s*(?:\*/)?\s*$`)
	bundlePattern      = regexp.MustCompile(annotationPrefix + `bundle(?:\s+(true|false))?\s*(?:\*/)?\s*$`)
	sourcemapPattern   = regexp.MustCompile(annotationPrefix + `sourcemap(?:\s+(true|false))?\s*(?:\*/)?\s*$`)
	externalPattern    = regexp.MustCompile(annotationPrefix + `external\s+(.+?)\s*(?:\*/)?\s*$`)
)

// ParseAnnotations extracts @funcpack: annotations from source code.
// Annotations inside string literals are not matched because they must start
// a comment line.
func ParseAnnotations(code string) Annotations {
	var a Annotations

	if m := nodeVersionPattern.FindStringSubmatch(code); len(m) > 1 {
		value := strings.TrimSpace(m[1])
		a.NodeVersion = &value
	}

	if m := formatPattern.FindStringSubmatch(code); len(m) > 1 {
		value := strings.TrimSpace(m[1])
		a.ModuleFormat = &value
	}

	if m := bundlePattern.FindStringSubmatch(code); m != nil {
		value := len(m) <= 1 || m[1] != "false"
		a.Bundle = &value
	}

	if m := sourcemapPattern.FindStringSubmatch(code); m != nil {
		value := len(m) <= 1 || m[1] != "false"
		a.Sourcemap = &value
	}

	// external may appear several times; all lists are merged
	for _, m := range externalPattern.FindAllStringSubmatch(code, -1) {
		for _, name := range strings.Split(m[1], ",") {
			if name = strings.TrimSpace(name); name != "" {
				a.ExternalModules = append(a.ExternalModules, name)
			}
		}
	}

	return a
}
