package ops

import (
	"sync"
	"time"
)

// kindCounters tracks terminal outcomes for one job kind.
type kindCounters struct {
	Done       int64 `json:"done"`
	Retried    int64 `json:"retried"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`
}

// Stats holds the in-memory counters backing GET /admin/stats, updated
// on every terminal job.Runner outcome.
type Stats struct {
	mu      sync.RWMutex
	started time.Time
	byKind  map[string]*kindCounters
}

// NewStats builds an empty Stats clocked from the current time.
func NewStats() *Stats {
	return &Stats{started: time.Now(), byKind: make(map[string]*kindCounters)}
}

// Observe records one terminal outcome for kind. The id parameter is
// accepted to match jobs.Runner.OnResult's signature but isn't counted.
func (s *Stats) Observe(kind, id, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byKind[kind]
	if !ok {
		c = &kindCounters{}
		s.byKind[kind] = c
	}

	switch outcome {
	case "done":
		c.Done++
	case "retry":
		c.Retried++
	case "failed":
		c.Failed++
	case "dead_letter":
		c.DeadLetter++
	}
}

// Snapshot is the JSON shape served at GET /admin/stats.
type Snapshot struct {
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Jobs          map[string]kindCounters `json:"jobs"`
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make(map[string]kindCounters, len(s.byKind))
	for kind, c := range s.byKind {
		jobs[kind] = *c
	}

	return Snapshot{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Jobs:          jobs,
	}
}
