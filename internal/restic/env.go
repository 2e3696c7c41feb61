package restic

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ExecutionEnv builds the environment map for a restic invocation
// against a location. A clean_env map replaces the inherited process
// environment entirely, so no ambient credentials leak into a sensitive
// invocation. Otherwise the process environment is overlaid with the
// location's env map, location keys winning on conflict.
func (b *Builder) ExecutionEnv(locationName string) (map[string]string, error) {
	loc, err := b.cfg.GetLocation(locationName)
	if err != nil {
		return nil, err
	}

	if loc.CleanEnv != nil {
		out := make(map[string]string, len(loc.CleanEnv))
		for k, v := range loc.CleanEnv {
			out[k] = v
		}
		return out, nil
	}

	out := make(map[string]string, len(loc.Env)+32)
	for _, entry := range os.Environ() {
		if k, v, ok := strings.Cut(entry, "="); ok {
			out[k] = v
		}
	}
	for k, v := range loc.Env {
		out[k] = v
	}
	return out, nil
}

// MergeEnv overlays b over a into a fresh map. Used for cross-repo
// operations where one process serves both locations.
func MergeEnv(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// FlattenEnv converts an environment map to the sorted KEY=VALUE form
// expected by os/exec.
func FlattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
