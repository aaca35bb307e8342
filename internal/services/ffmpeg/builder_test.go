package ffmpeg_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mkvshrink/internal/services"
	"mkvshrink/internal/services/ffmpeg"
	"mkvshrink/internal/settings"
)

func mustSettings(t *testing.T, edit func(*settings.Params)) settings.Settings {
	t.Helper()
	params := settings.DefaultParams()
	if edit != nil {
		edit(&params)
	}
	s, err := settings.New(params)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	return s
}

func TestBuildSinglePassScenario(t *testing.T) {
	s := mustSettings(t, nil)
	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "a.mp4", Output: "a.mkv", Settings: s, DurationSeconds: 100})
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	if inv.TwoPass() || len(inv.Passes) != 1 {
		t.Fatalf("expected single pass, got %d", len(inv.Passes))
	}
	want := []string{
		"-hide_banner", "-nostdin", "-y", "-i", "a.mp4",
		"-map", "0:v:0", "-map", "0:a?",
		"-c:v", "libx264", "-crf", "23", "-preset", "medium",
		"-c:a", "aac", "-b:a", "128k",
		"-f", "matroska", "a.mkv",
	}
	if diff := cmp.Diff(want, inv.Passes[0].Args); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
	if inv.Passes[0].DiscardsOutput {
		t.Fatal("single pass must write output")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	s := mustSettings(t, func(p *settings.Params) {
		p.VideoCodec = "h265"
		p.TwoPass = true
		p.Width, p.Height = 1280, 720
		p.TargetSize = "700MB"
	})
	req := ffmpeg.BuildRequest{Input: "in.mov", Output: "out dir/out.mkv", Settings: s, DurationSeconds: 3600}
	first, err := ffmpeg.BuildInvocation(req)
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ffmpeg.BuildInvocation(req)
		if err != nil {
			t.Fatalf("BuildInvocation: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("non-deterministic output (-first +again):\n%s", diff)
		}
	}
}

func TestBuildTwoPassX264(t *testing.T) {
	s := mustSettings(t, func(p *settings.Params) {
		p.TwoPass = true
		p.MaxBitrate = "2000k"
		p.Filter = "crop=1920:800"
		p.Width, p.Height = 1280, 720
	})
	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "in.mp4", Output: "/tmp/out.mkv", Settings: s})
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	if !inv.TwoPass() || inv.PassLogPrefix != "/tmp/out.mkv.passlog" {
		t.Fatalf("unexpected invocation %+v", inv)
	}
	pass1 := []string{
		"-hide_banner", "-nostdin", "-y", "-i", "in.mp4",
		"-map", "0:v:0",
		"-c:v", "libx264", "-b:v", "2M", "-preset", "medium",
		"-pass", "1", "-passlogfile", "/tmp/out.mkv.passlog",
		"-maxrate", "2M", "-bufsize", "4M",
		"-vf", "crop=1920:800",
		"-an", "-f", "null", "-",
	}
	pass2 := []string{
		"-hide_banner", "-nostdin", "-y", "-i", "in.mp4",
		"-map", "0:v:0", "-map", "0:a?",
		"-c:v", "libx264", "-b:v", "2M", "-preset", "medium",
		"-pass", "2", "-passlogfile", "/tmp/out.mkv.passlog",
		"-maxrate", "2M", "-bufsize", "4M",
		"-vf", "crop=1920:800",
		"-c:a", "aac", "-b:a", "128k",
		"-f", "matroska", "/tmp/out.mkv",
	}
	if diff := cmp.Diff(pass1, inv.Passes[0].Args); diff != "" {
		t.Fatalf("pass 1 mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(pass2, inv.Passes[1].Args); diff != "" {
		t.Fatalf("pass 2 mismatch (-want +got):\n%s", diff)
	}
	if !inv.Passes[0].DiscardsOutput || inv.Passes[1].DiscardsOutput {
		t.Fatal("only pass 1 discards output")
	}
}

func TestBuildTwoPassX265UsesParams(t *testing.T) {
	s := mustSettings(t, func(p *settings.Params) {
		p.VideoCodec = "h265"
		p.TwoPass = true
	})
	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "in.mp4", Output: "out.mkv", Settings: s, PassLogPrefix: "/tmp/job1"})
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	joined := strings.Join(inv.Passes[1].Args, " ")
	if !strings.Contains(joined, "-x265-params pass=2:stats=/tmp/job1.log") {
		t.Fatalf("expected x265 pass params, got %s", joined)
	}
	if strings.Contains(joined, "-passlogfile") {
		t.Fatalf("x265 must not use -passlogfile: %s", joined)
	}
	if !strings.Contains(joined, "-crf 23") {
		t.Fatalf("expected crf without a derivable bitrate: %s", joined)
	}
}

func TestBuildVP9AndScale(t *testing.T) {
	s := mustSettings(t, func(p *settings.Params) {
		p.VideoCodec = "vp9"
		p.Speed = "slow"
		p.AudioCodec = "vorbis"
		p.AudioBitrate = "96k"
		p.Width, p.Height = 640, 360
	})
	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "in.webm", Output: "out.mkv", Settings: s})
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	want := []string{
		"-hide_banner", "-nostdin", "-y", "-i", "in.webm",
		"-map", "0:v:0", "-map", "0:a?",
		"-c:v", "libvpx-vp9", "-crf", "23", "-b:v", "0", "-deadline", "good", "-cpu-used", "1",
		"-vf", "scale=640:360",
		"-c:a", "libvorbis", "-b:a", "96k",
		"-f", "matroska", "out.mkv",
	}
	if diff := cmp.Diff(want, inv.Passes[0].Args); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildStreamCopy(t *testing.T) {
	s := mustSettings(t, func(p *settings.Params) {
		p.VideoCodec = "copy"
		p.AudioCodec = "copy"
		p.MaxBitrate = "1M"
	})
	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "in.avi", Output: "out.mkv", Settings: s})
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	want := []string{
		"-hide_banner", "-nostdin", "-y", "-i", "in.avi",
		"-map", "0:v:0", "-map", "0:a?",
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "matroska", "out.mkv",
	}
	if diff := cmp.Diff(want, inv.Passes[0].Args); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTargetSizeDerivesRate(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		duration float64
		want     string
	}{
		// 100MB over 400s is 2,000,000 b/s; minus 128k audio.
		{"derived", "100MB", 400, "1872k"},
		{"floored", "1MB", 3600, "100k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSettings(t, func(p *settings.Params) { p.TargetSize = tt.target })
			inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "in.mp4", Output: "out.mkv", Settings: s, DurationSeconds: tt.duration})
			if err != nil {
				t.Fatalf("BuildInvocation: %v", err)
			}
			joined := strings.Join(inv.Passes[0].Args, " ")
			if !strings.Contains(joined, "-maxrate "+tt.want) {
				t.Fatalf("expected -maxrate %s in %s", tt.want, joined)
			}
		})
	}

	s := mustSettings(t, func(p *settings.Params) { p.TargetSize = "100MB" })
	inv, _ := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "in.mp4", Output: "out.mkv", Settings: s})
	if strings.Contains(strings.Join(inv.Passes[0].Args, " "), "-maxrate") {
		t.Fatal("unknown duration must not derive a rate")
	}
}

func TestBuildRejectsEmptyPathsAndZeroSettings(t *testing.T) {
	s := mustSettings(t, nil)
	for _, req := range []ffmpeg.BuildRequest{
		{Input: "", Output: "out.mkv", Settings: s},
		{Input: "in.mp4", Output: "  ", Settings: s},
		{Input: "in.mp4", Output: "out.mkv"},
	} {
		if _, err := ffmpeg.BuildInvocation(req); !errors.Is(err, services.ErrInvalidSettings) {
			t.Fatalf("expected ErrInvalidSettings for %+v, got %v", req, err)
		}
	}
}

func TestCommandLineQuotes(t *testing.T) {
	s := mustSettings(t, nil)
	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{Input: "my movie's.mp4", Output: "out.mkv", Settings: s})
	if err != nil {
		t.Fatalf("BuildInvocation: %v", err)
	}
	line := inv.CommandLine("/usr/bin/ffmpeg")
	if !strings.HasPrefix(line, "/usr/bin/ffmpeg -hide_banner") {
		t.Fatalf("unexpected prefix: %s", line)
	}
	if !strings.Contains(line, `'my movie'\''s.mp4'`) {
		t.Fatalf("expected quoted input in %s", line)
	}
	if !strings.Contains(line, "'0:a?'") {
		t.Fatalf("expected glob characters quoted in %s", line)
	}
}
