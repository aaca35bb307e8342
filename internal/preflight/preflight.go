package preflight

import (
	"context"
	"path/filepath"
	"strings"

	"mkvshrink/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}
	return results
}

// Target is one planned output and the bytes it is expected to take.
type Target struct {
	Output   string
	Estimate int64
}

// CheckOutputs groups targets by output directory and checks each directory
// for access and free space. minFreeBytes is kept free on top of the estimate.
func CheckOutputs(targets []Target, minFreeBytes int64) []Result {
	order := make([]string, 0, len(targets))
	needed := make(map[string]int64, len(targets))
	for _, t := range targets {
		dir := filepath.Dir(t.Output)
		if _, ok := needed[dir]; !ok {
			order = append(order, dir)
		}
		needed[dir] += t.Estimate
	}

	results := make([]Result, 0, len(order)*2)
	for _, dir := range order {
		probe := nearestExisting(dir)
		access := CheckDirectoryAccess("Output directory", probe)
		results = append(results, access)
		if !access.Passed {
			continue
		}
		results = append(results, CheckDiskSpace("Disk space", probe, needed[dir]+minFreeBytes))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// nearestExisting walks up from dir until it finds a path that exists;
// output directories are created lazily by the runner.
func nearestExisting(dir string) string {
	current := filepath.Clean(dir)
	for {
		if exists(current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current || strings.TrimSpace(parent) == "" {
			return current
		}
		current = parent
	}
}
