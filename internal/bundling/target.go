package bundling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// MinNodeMajor is the oldest Node.js release a target can be resolved to
	MinNodeMajor uint64 = 8
	// MaxNodeMajor is the newest Node.js release known to the resolver ("latest")
	MaxNodeMajor uint64 = 24
	// DefaultNodeMajor is used when a function declares no version
	DefaultNodeMajor uint64 = 22

	// first release with stable ESM loading
	esmOutputMinMajor uint64 = 12
	// first release where bundled ESM with package exports works reliably
	nativeModulesMinMajor uint64 = 14
)

// Target is a concrete compiler target for one Node.js major release
type Target struct {
	Major uint64
}

// String returns the compiler identifier, e.g. "node18"
func (t Target) String() string {
	return "node" + strconv.FormatUint(t.Major, 10)
}

// SupportsESMOutput reports whether the runtime can load ESM output at all
func (t Target) SupportsESMOutput() bool {
	return t.Major >= esmOutputMinMajor
}

// SupportsNativeModules reports whether the runtime resolves bundled modules
// natively. Older runtimes need the legacy packager.
func (t Target) SupportsNativeModules() bool {
	return t.Major >= nativeModulesMinMajor
}

// ResolveTarget maps a runtime version constraint to a compiler target.
//
// Plain versions ("18", "v18.17.1", "node18", "nodejs18.x") resolve to their
// major. Ranges ("^18", ">=16 <20", "16 || 18") resolve to the lowest known
// major that satisfies them, so emitted code runs on every engine the range
// admits. The function is pure: the same input always gives the same target.
func ResolveTarget(constraint string) (Target, error) {
	raw := strings.ToLower(strings.TrimSpace(constraint))

	switch raw {
	case "":
		return Target{Major: DefaultNodeMajor}, nil
	case "latest", "current":
		return Target{Major: MaxNodeMajor}, nil
	}

	raw = strings.TrimPrefix(raw, "nodejs")
	raw = strings.TrimPrefix(raw, "node")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, invalidConstraint(constraint, "missing version")
	}

	if v, err := semver.NewVersion(raw); err == nil {
		return targetForMajor(constraint, v.Major())
	}

	c, err := semver.NewConstraint(raw)
	if err != nil {
		return Target{}, &ConfigurationError{
			Field:  "node_version",
			Reason: fmt.Sprintf("invalid runtime version constraint %q", constraint),
			Err:    err,
		}
	}

	literals := versionLiterals(raw)
	for major := MinNodeMajor; major <= MaxNodeMajor; major++ {
		if majorSatisfies(c, major, literals) {
			return Target{Major: major}, nil
		}
	}

	return Target{}, invalidConstraint(constraint,
		fmt.Sprintf("no Node.js release between %d and %d satisfies it", MinNodeMajor, MaxNodeMajor))
}

func targetForMajor(constraint string, major uint64) (Target, error) {
	if major < MinNodeMajor || major > MaxNodeMajor {
		return Target{}, invalidConstraint(constraint,
			fmt.Sprintf("Node.js %d is outside the supported range %d-%d", major, MinNodeMajor, MaxNodeMajor))
	}
	return Target{Major: major}, nil
}

var versionLiteralRegex = regexp.MustCompile(`\d+(?:\.\d+){0,2}`)

// versionLiterals collects the versions spelled out in a constraint, so that
// narrow ranges such as "~16.4" or "=18.2.1" can be matched exactly.
func versionLiterals(raw string) []*semver.Version {
	var out []*semver.Version
	for _, lit := range versionLiteralRegex.FindAllString(raw, -1) {
		if v, err := semver.NewVersion(lit); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// majorSatisfies checks both ends of a release line plus any literal from the
// constraint that falls inside it.
func majorSatisfies(c *semver.Constraints, major uint64, literals []*semver.Version) bool {
	if c.Check(semver.New(major, 0, 0, "", "")) || c.Check(semver.New(major, 999, 999, "", "")) {
		return true
	}
	for _, v := range literals {
		if v.Major() == major && c.Check(v) {
			return true
		}
	}
	return false
}

func invalidConstraint(constraint, reason string) error {
	return &ConfigurationError{
		Field:  "node_version",
		Reason: fmt.Sprintf("invalid runtime version constraint %q: %s", constraint, reason),
	}
}
