package logging

import (
	"strings"
	"sync"
)

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when stages or percentage buckets change.
type ProgressSampler struct {
	bucketSize float64
	lastStage  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 5%) or when the stage changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Percent can be
// negative to indicate "unknown"; stage is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	stage = strings.TrimSpace(stage)
	emit := false
	if stage != "" && stage != s.lastStage {
		s.lastStage = stage
		emit = true
		s.lastBucket = -1
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new job starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStage = ""
	s.lastBucket = -1
}

// ProgressSamplerSet keeps one sampler per key so concurrent jobs in a batch
// are sampled independently. Safe for concurrent use.
type ProgressSamplerSet struct {
	mu         sync.Mutex
	bucketSize float64
	samplers   map[string]*ProgressSampler
}

// NewProgressSamplerSet returns an empty set using the given bucket size for
// every sampler it creates.
func NewProgressSamplerSet(bucketSize float64) *ProgressSamplerSet {
	return &ProgressSamplerSet{bucketSize: bucketSize, samplers: make(map[string]*ProgressSampler)}
}

// ShouldLog reports whether the progress event for key should be logged.
func (s *ProgressSamplerSet) ShouldLog(key string, percent float64, stage string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sampler, ok := s.samplers[key]
	if !ok {
		sampler = NewProgressSampler(s.bucketSize)
		s.samplers[key] = sampler
	}
	return sampler.ShouldLog(percent, stage)
}

// Forget drops the sampler for key once its job has finished.
func (s *ProgressSamplerSet) Forget(key string) {
	s.mu.Lock()
	delete(s.samplers, key)
	s.mu.Unlock()
}
