package testsupport

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// WriteScript writes an executable /bin/sh script named name into dir and
// returns its path. Tests that need it are skipped on Windows.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell script stubs require a POSIX shell")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return target
}

// FakeFFprobe writes an ffprobe stand-in that prints payload for every input
// and fails for paths containing "unreadable".
func FakeFFprobe(t testing.TB, dir, payload string) string {
	t.Helper()
	body := `for last; do :; done
case "$last" in
  *unreadable*) echo "$last: Invalid data found when processing input" >&2; exit 1 ;;
esac
cat <<'JSON'
` + payload + `
JSON`
	return WriteScript(t, dir, "ffprobe", body)
}

// ProbeJSON is a minimal ffprobe payload for a 1080p clip with AAC audio.
func ProbeJSON(durationSeconds string) string {
	return `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2}
  ],
  "format": {"filename": "clip.mp4", "nb_streams": 2, "format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "` + durationSeconds + `", "size": "1048576", "bit_rate": "2000000"}
}`
}
