package preflight

import (
	"context"
	"fmt"
	"strings"

	"clipmerge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Highlights root", cfg.Paths.Root),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available || status.Optional}
		switch {
		case status.Available && status.Version != "":
			result.Detail = status.Version
		case status.Available:
			result.Detail = status.Command
		default:
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	results = append(results, CheckEncoders(ctx, cfg))
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary joins failed checks into one line for an error message.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return strings.Join(parts, "; ")
}
