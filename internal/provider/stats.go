package provider

import (
	"slices"
	"sync"
	"time"
)

// Outcome classifies how a refresh ended.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed" // New forest published
	OutcomeFallback  Outcome = "fallback"  // Committed from the fallback parser
	OutcomeRetained  Outcome = "retained"  // Source failed; last-good forest kept
	OutcomeDiscarded Outcome = "discarded" // Superseded by a newer refresh
	OutcomeCleared   Outcome = "cleared"   // No document; state reset
)

type sample struct {
	timestamp time.Time
	duration  time.Duration
	outcome   Outcome
}

// StatsSnapshot is a point-in-time aggregate of refresh latencies.
type StatsSnapshot struct {
	Count    int             `json:"count"`
	MinMs    float64         `json:"min_ms"`
	MaxMs    float64         `json:"max_ms"`
	AvgMs    float64         `json:"avg_ms"`
	P50Ms    float64         `json:"p50_ms"`
	P95Ms    float64         `json:"p95_ms"`
	P99Ms    float64         `json:"p99_ms"`
	Outcomes map[Outcome]int `json:"outcomes,omitempty"`
}

// RefreshStats tracks recent refresh latencies within a rolling window.
// One instance may be shared by every dispatcher in a process.
type RefreshStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	now     func() time.Time
}

func NewRefreshStats(maxAge time.Duration) *RefreshStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &RefreshStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (s *RefreshStats) Record(d time.Duration, outcome Outcome) {
	if s == nil {
		return
	}
	if d < 0 {
		d = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{
		timestamp: now,
		duration:  d,
		outcome:   outcome,
	})
}

func (s *RefreshStats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	values := make([]float64, 0, len(s.samples))
	outcomes := make(map[Outcome]int)
	var sum float64
	for _, sm := range s.samples {
		ms := float64(sm.duration) / float64(time.Millisecond)
		values = append(values, ms)
		sum += ms
		outcomes[sm.outcome]++
	}
	slices.Sort(values)

	return StatsSnapshot{
		Count:    len(values),
		MinMs:    values[0],
		MaxMs:    values[len(values)-1],
		AvgMs:    sum / float64(len(values)),
		P50Ms:    percentile(values, 50),
		P95Ms:    percentile(values, 95),
		P99Ms:    percentile(values, 99),
		Outcomes: outcomes,
	}
}

func (s *RefreshStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.timestamp.Before(cutoff)
	})
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
