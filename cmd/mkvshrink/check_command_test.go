package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckCommandPasses(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "ffmpeg version 6.1-test")
	requireContains(t, out, "ffprobe version 6.1-test")
	requireContains(t, out, "All checks passed")
}

func TestCheckCommandReportsMissingTool(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.Remove(env.ffprobe); err != nil {
		t.Fatalf("remove ffprobe: %v", err)
	}
	env.ffprobe = filepath.Join(env.baseDir, "bin", "ffprobe")
	writeTestConfig(t, env)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "1 tool(s) missing") {
		t.Fatalf("expected missing tool error, got %v", err)
	}
	requireContains(t, out, "missing")
}

func TestTestNotifyRequiresTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
}
