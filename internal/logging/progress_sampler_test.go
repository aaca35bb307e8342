package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "pass 1") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_StageChange(t *testing.T) {
	s := NewProgressSampler(5)

	if !s.ShouldLog(0, "pass 1") {
		t.Error("first stage should log")
	}
	if s.ShouldLog(0, "pass 1") {
		t.Error("same stage and percent should not log again")
	}
	if !s.ShouldLog(0, "  pass 2 ") {
		t.Error("different stage should log")
	}
	if s.lastStage != "pass 2" {
		t.Errorf("lastStage = %q, want trimmed pass 2", s.lastStage)
	}
}

func TestProgressSampler_PercentBuckets(t *testing.T) {
	s := NewProgressSampler(5)

	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{3, false},
		{5, true},
		{7, false},
		{10, true},
		{100, true},
		{105, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.percent, "encode"); got != step.want {
			t.Fatalf("ShouldLog(%v) = %v, want %v", step.percent, got, step.want)
		}
	}
}

func TestProgressSampler_NegativePercent(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(-1, "probe") {
		t.Error("first call should log even with negative percent")
	}
	if s.ShouldLog(-1, "probe") {
		t.Error("negative percent should not trigger bucket logging")
	}
}

func TestProgressSamplerSetTracksKeysIndependently(t *testing.T) {
	set := NewProgressSamplerSet(10)
	if !set.ShouldLog("a", 0, "encode") {
		t.Fatal("first event for a should log")
	}
	if !set.ShouldLog("b", 0, "encode") {
		t.Fatal("first event for b should log despite a's state")
	}
	if set.ShouldLog("a", 5, "encode") {
		t.Fatal("a within same bucket should not log")
	}
	set.Forget("a")
	if !set.ShouldLog("a", 5, "encode") {
		t.Fatal("forgotten key should start fresh")
	}
}
