package settings_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mkvshrink/internal/services"
	"mkvshrink/internal/settings"
)

func TestBuiltinPresetsAreValid(t *testing.T) {
	want := map[string]struct {
		crf   int
		speed settings.SpeedPreset
		audio string
	}{
		"High Quality":  {18, settings.Slow, "192k"},
		"Balanced":      {23, settings.Medium, "128k"},
		"Small Size":    {28, settings.Fast, "96k"},
		"Mobile":        {26, settings.Fast, "96k"},
		"Web Optimized": {24, settings.Medium, "128k"},
	}
	presets := settings.BuiltinPresets()
	if len(presets) != len(want) {
		t.Fatalf("expected %d presets, got %d", len(want), len(presets))
	}
	for _, p := range presets {
		s, err := p.Settings()
		if err != nil {
			t.Fatalf("preset %q invalid: %v", p.Name, err)
		}
		w, ok := want[p.Name]
		if !ok {
			t.Fatalf("unexpected preset %q", p.Name)
		}
		if s.CRF() != w.crf || s.Speed() != w.speed || s.AudioBitrate() != w.audio {
			t.Fatalf("preset %q = %s", p.Name, s)
		}
	}
	mobile, _ := settings.FindPreset(presets, "mobile")
	if mobile.Params.Width != 1280 || mobile.Params.Height != 720 {
		t.Fatalf("mobile resolution = %dx%d", mobile.Params.Width, mobile.Params.Height)
	}
	web, _ := settings.FindPreset(presets, "WEB  optimized")
	if web.Params.MaxBitrate != "2000k" {
		t.Fatalf("web max bitrate = %q", web.Params.MaxBitrate)
	}
}

func TestResolveAppliesOverrides(t *testing.T) {
	crf := 30
	res := "640x360"
	s, err := settings.Resolve(settings.BuiltinPresets(), "high quality", settings.Overrides{CRF: &crf, Resolution: &res})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.CRF() != 30 || s.Speed() != settings.Slow || s.Width() != 640 || s.Height() != 360 {
		t.Fatalf("unexpected settings %s", s)
	}

	if _, err := settings.Resolve(settings.BuiltinPresets(), "Nope", settings.Overrides{}); !errors.Is(err, services.ErrInvalidSettings) {
		t.Fatalf("expected unknown preset to fail, got %v", err)
	}
	bad := "wide"
	if _, err := settings.Resolve(settings.BuiltinPresets(), "", settings.Overrides{Resolution: &bad}); err == nil {
		t.Fatal("expected bad resolution to fail")
	}
}

func TestOverridesMergePrefersLaterLayer(t *testing.T) {
	a, b := 20, 25
	speed := "slow"
	merged := settings.Overrides{CRF: &a, Speed: &speed}.Merge(settings.Overrides{CRF: &b})
	if *merged.CRF != 25 || *merged.Speed != "slow" {
		t.Fatalf("unexpected merge %+v", merged)
	}
}

func TestPresetStoreSaveLoadDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	store := settings.NewPresetStore(path)

	if presets, err := store.Load(); err != nil || len(presets) != 0 {
		t.Fatalf("expected empty store, got %v %v", presets, err)
	}

	params := settings.DefaultParams()
	params.VideoCodec = "h265"
	params.CRF = 26
	if err := store.Save(settings.Preset{Name: "Archive", Description: "hevc archive", Params: params}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	archive, ok := settings.FindPreset(all, "archive")
	if !ok {
		t.Fatal("expected saved preset")
	}
	if archive.BuiltIn || archive.Params.VideoCodec != "h265" || archive.Params.CRF != 26 {
		t.Fatalf("unexpected preset %+v", archive)
	}

	params.CRF = 22
	if err := store.Save(settings.Preset{Name: "ARCHIVE", Params: params}); err != nil {
		t.Fatalf("Save replace: %v", err)
	}
	user, _ := store.Load()
	if len(user) != 1 || user[0].Params.CRF != 22 {
		t.Fatalf("expected replacement, got %+v", user)
	}

	removed, err := store.Delete("archive")
	if err != nil || !removed {
		t.Fatalf("Delete = %v, %v", removed, err)
	}
	if removed, _ := store.Delete("archive"); removed {
		t.Fatal("second delete should report nothing removed")
	}
}

func TestPresetStoreRejectsBuiltinNamesAndInvalidParams(t *testing.T) {
	store := settings.NewPresetStore(filepath.Join(t.TempDir(), "presets.toml"))
	if err := store.Save(settings.Preset{Name: "balanced", Params: settings.DefaultParams()}); err == nil {
		t.Fatal("expected built-in name to be rejected")
	}
	bad := settings.DefaultParams()
	bad.CRF = 60
	if err := store.Save(settings.Preset{Name: "Broken", Params: bad}); !errors.Is(err, services.ErrInvalidSettings) {
		t.Fatalf("expected invalid settings error, got %v", err)
	}
}

func TestPresetStoreRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	content := "[[preset]]\nname = \"Odd\"\nsparkle = true\n[preset.params]\nvideo_codec = \"h264\"\ncrf = 20\npreset = \"fast\"\naudio_codec = \"aac\"\naudio_bitrate = \"96k\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write presets: %v", err)
	}
	_, err := settings.NewPresetStore(path).Load()
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if !strings.Contains(err.Error(), "sparkle") {
		t.Fatalf("expected offending key in error, got %v", err)
	}
}

func TestEstimateOutputSize(t *testing.T) {
	base := settings.MustNew(settings.DefaultParams())
	if got := settings.EstimateOutputSize(base, 1000, 1920, 1080, 60); got != 600 {
		t.Fatalf("balanced estimate = %d, want 600", got)
	}

	hq, _ := base.With(func(p *settings.Params) { p.CRF = 18 })
	if got := settings.EstimateOutputSize(hq, 1000, 1920, 1080, 60); got != 800 {
		t.Fatalf("high quality estimate = %d, want 800", got)
	}

	half, _ := base.With(func(p *settings.Params) { p.Width, p.Height = 960, 1080 })
	if got := settings.EstimateOutputSize(half, 1000, 1920, 1080, 60); got != 300 {
		t.Fatalf("scaled estimate = %d, want 300", got)
	}

	capped, _ := base.With(func(p *settings.Params) { p.MaxBitrate = "8k"; p.AudioCodec = "copy" })
	if got := settings.EstimateOutputSize(capped, 1_000_000, 0, 0, 10); got != 10_000 {
		t.Fatalf("capped estimate = %d, want 10000", got)
	}

	if got := settings.EstimateOutputSize(base, 0, 0, 0, 0); got != 0 {
		t.Fatalf("zero input estimate = %d", got)
	}
}
