package pipeline

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at      time.Time
	elapsed time.Duration
	outcome Outcome
}

// Outcome classifies a finished parse.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// StatsSnapshot aggregates the parse samples inside the window.
type StatsSnapshot struct {
	Count    int             `json:"count"`
	MinMs    float64         `json:"min_ms"`
	MaxMs    float64         `json:"max_ms"`
	AvgMs    float64         `json:"avg_ms"`
	P50Ms    float64         `json:"p50_ms"`
	P95Ms    float64         `json:"p95_ms"`
	P99Ms    float64         `json:"p99_ms"`
	Outcomes map[Outcome]int `json:"outcomes"`
}

// ParseStats tracks parse latency over a rolling window.
type ParseStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

func NewParseStats(window time.Duration) *ParseStats {
	if window <= 0 {
		window = time.Hour
	}
	return &ParseStats{
		samples: make([]sample, 0, 256),
		window:  window,
		now:     time.Now,
	}
}

// Record adds one parse. Negative durations count as zero.
func (s *ParseStats) Record(elapsed time.Duration, outcome Outcome) {
	elapsed = max(elapsed, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, elapsed: elapsed, outcome: outcome})
}

func (s *ParseStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())

	snap := StatsSnapshot{Outcomes: map[Outcome]int{}}
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]float64, 0, len(s.samples))
	var sum float64
	for _, sm := range s.samples {
		ms := float64(sm.elapsed) / float64(time.Millisecond)
		values = append(values, ms)
		sum += ms
		snap.Outcomes[sm.outcome]++
	}
	slices.Sort(values)

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = sum / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *ParseStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return sorted[0]
	case pct >= 100:
		return sorted[len(sorted)-1]
	}
	index := float64(len(sorted)-1) * pct / 100
	lower := int(index)
	if lower+1 >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[lower+1]-sorted[lower])*weight
}
