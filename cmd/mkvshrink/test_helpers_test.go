package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mkvshrink/internal/testsupport"
)

const fakeFFmpeg = `case "$1" in
  -version) echo "ffmpeg version 6.1-test Copyright (c) 2000-2023"; exit 0 ;;
esac
for last; do :; done
printf '  Duration: 00:01:40.00, start: 0.000000, bitrate: 2205 kb/s\n' >&2
printf 'frame=  10 fps=0.0 q=28.0 size=       1kB time=00:00:50.00 bitrate= 512.0kbits/s speed=2.00x\r' >&2
if [ "$last" != "-" ]; then printf 'matroska-bytes' > "$last"; fi
printf 'frame=  20 fps=0.0 q=28.0 size=       2kB time=00:01:40.00 bitrate= 512.0kbits/s speed=2.00x\n' >&2
`

func fakeFFprobe(payload string) string {
	return `case "$1" in
  -version) echo "ffprobe version 6.1-test"; exit 0 ;;
esac
for last; do :; done
case "$last" in
  *unreadable*) echo "$last: Invalid data found when processing input" >&2; exit 1 ;;
esac
cat <<'JSON'
` + payload + `
JSON`
}

type cliTestEnv struct {
	baseDir    string
	configPath string
	stateDir   string
	mediaDir   string
	ffmpeg     string
	ffprobe    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)

	bin := filepath.Join(base, "bin")
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		stateDir:   filepath.Join(base, "state"),
		mediaDir:   filepath.Join(base, "media"),
		ffmpeg:     testsupport.WriteScript(t, bin, "ffmpeg", fakeFFmpeg),
		ffprobe:    testsupport.WriteScript(t, bin, "ffprobe", fakeFFprobe(testsupport.ProbeJSON("100.000000"))),
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
presets_file = %q

[encoder]
ffmpeg_path = %q
ffprobe_path = %q
cancel_grace_seconds = 1

[validation]
min_free_space_mb = 0
`,
		env.stateDir,
		filepath.Join(env.baseDir, "logs"),
		filepath.Join(env.baseDir, "presets.toml"),
		env.ffmpeg,
		env.ffprobe,
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) media(t *testing.T, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(env.mediaDir, name)
		testsupport.WriteFile(t, path, 4096)
		paths = append(paths, path)
	}
	return paths
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
