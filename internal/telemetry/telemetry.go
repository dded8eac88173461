package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request statuses.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusNoProvider = "no_provider"
)

// RequestLog is one routed request's telemetry record.
type RequestLog struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Model           string    `json:"model"`
	EffectiveModel  string    `json:"effective_model,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	Status          string    `json:"status"`
	StatusCode      *int      `json:"status_code,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	InputTokens     *int64    `json:"input_tokens,omitempty"`
	OutputTokens    *int64    `json:"output_tokens,omitempty"`
	EstimatedCost   *float64  `json:"estimated_cost,omitempty"`
	ComplexityTier  string    `json:"complexity_tier,omitempty"`
	ComplexityScore *float64  `json:"complexity_score,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ProvidersTried  []string  `json:"providers_tried"`
	CacheStatus     string    `json:"cache_status,omitempty"`
	SessionPinned   bool      `json:"session_pinned,omitempty"`
}

// ProviderStats are lifetime aggregates for one provider.
type ProviderStats struct {
	Requests      int64   `json:"requests"`
	Successful    int64   `json:"successful"`
	Failed        int64   `json:"failed"`
	TotalCost     float64 `json:"total_cost"`
	SumDurationMs int64   `json:"sum_duration_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// ModelStats are lifetime aggregates for one requested model.
type ModelStats struct {
	Requests  int64   `json:"requests"`
	TotalCost float64 `json:"total_cost"`
}

// Snapshot is a consistent point-in-time view of the store.
type Snapshot struct {
	Requests      int64                     `json:"requests"`
	Successful    int64                     `json:"successful"`
	Failed        int64                     `json:"failed"`
	NoProvider    int64                     `json:"no_provider"`
	TotalCost     float64                   `json:"total_cost"`
	SumDurationMs int64                     `json:"sum_duration_ms"`
	AvgDurationMs float64                   `json:"avg_duration_ms"`
	Providers     map[string]ProviderStats  `json:"providers"`
	Models        map[string]ModelStats     `json:"models"`
	Tiers         map[string]int64          `json:"complexity_tiers"`
	Recent        []RequestLog              `json:"recent_requests"`
}

// snapshotRecent caps Snapshot.Recent.
const snapshotRecent = 100

// Filter narrows Recent queries. Model and Provider match by substring.
type Filter struct {
	Status   string
	Model    string
	Provider string
}

// Store keeps the bounded log ring and lifetime aggregates. Aggregates
// are never adjusted on ring eviction. A single mutex guards all state;
// every read path copies out.
type Store struct {
	mu sync.Mutex

	ring  []RequestLog // fixed capacity
	head  int          // next write position
	count int          // logs currently in the ring

	requests    int64
	successful  int64
	failed      int64
	noProvider  int64
	totalCost   float64
	sumDuration int64

	providers map[string]*ProviderStats
	models    map[string]*ModelStats
	tiers     map[string]int64

	subs   map[int]chan RequestLog
	nextID int

	archive *Archive
}

// NewStore creates a Store with the given ring capacity.
func NewStore(maxLogs int) *Store {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &Store{
		ring:      make([]RequestLog, maxLogs),
		providers: make(map[string]*ProviderStats),
		models:    make(map[string]*ModelStats),
		tiers:     make(map[string]int64),
		subs:      make(map[int]chan RequestLog),
	}
}

// SetArchive attaches a durable log mirror. Archive writes happen
// outside the store lock.
func (s *Store) SetArchive(a *Archive) {
	s.mu.Lock()
	s.archive = a
	s.mu.Unlock()
}

// Record appends a log to the ring and folds it into the aggregates.
// O(1) amortized. Subscribers receive the log without blocking Record.
func (s *Store) Record(log RequestLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}
	if log.ProvidersTried == nil {
		log.ProvidersTried = []string{}
	}

	s.mu.Lock()
	s.ring[s.head] = log
	s.head = (s.head + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}

	s.requests++
	switch log.Status {
	case StatusSuccess:
		s.successful++
	case StatusNoProvider:
		s.noProvider++
	default:
		s.failed++
	}
	s.sumDuration += log.DurationMs
	if log.EstimatedCost != nil {
		s.totalCost += *log.EstimatedCost
	}
	if log.ComplexityTier != "" {
		s.tiers[log.ComplexityTier]++
	}

	if log.Provider != "" {
		ps, ok := s.providers[log.Provider]
		if !ok {
			ps = &ProviderStats{}
			s.providers[log.Provider] = ps
		}
		ps.Requests++
		if log.Status == StatusSuccess {
			ps.Successful++
		} else {
			ps.Failed++
		}
		ps.SumDurationMs += log.DurationMs
		if log.EstimatedCost != nil {
			ps.TotalCost += *log.EstimatedCost
		}
	}

	ms, ok := s.models[log.Model]
	if !ok {
		ms = &ModelStats{}
		s.models[log.Model] = ms
	}
	ms.Requests++
	if log.EstimatedCost != nil {
		ms.TotalCost += *log.EstimatedCost
	}

	for _, ch := range s.subs {
		select {
		case ch <- log:
		default: // slow subscriber drops entries rather than blocking
		}
	}
	archive := s.archive
	s.mu.Unlock()

	if archive != nil {
		archive.Record(log)
	}
}

// Snapshot returns a consistent copy of all aggregates plus the latest
// logs (newest first, capped at 100).
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Requests:      s.requests,
		Successful:    s.successful,
		Failed:        s.failed,
		NoProvider:    s.noProvider,
		TotalCost:     s.totalCost,
		SumDurationMs: s.sumDuration,
		Providers:     make(map[string]ProviderStats, len(s.providers)),
		Models:        make(map[string]ModelStats, len(s.models)),
		Tiers:         make(map[string]int64, len(s.tiers)),
	}
	if s.requests > 0 {
		snap.AvgDurationMs = float64(s.sumDuration) / float64(s.requests)
	}
	for k, v := range s.providers {
		ps := *v
		if ps.Requests > 0 {
			ps.AvgDurationMs = float64(ps.SumDurationMs) / float64(ps.Requests)
		}
		snap.Providers[k] = ps
	}
	for k, v := range s.models {
		snap.Models[k] = *v
	}
	for k, v := range s.tiers {
		snap.Tiers[k] = v
	}

	n := s.count
	if n > snapshotRecent {
		n = snapshotRecent
	}
	snap.Recent = s.newestLocked(n)
	return snap
}

// Recent returns a filtered page of logs, newest first, plus the total
// number of logs matching the filter.
func (s *Store) Recent(limit, offset int, f Filter) ([]RequestLog, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.newestLocked(s.count)
	var filtered []RequestLog
	for _, log := range all {
		if f.Status != "" && log.Status != f.Status {
			continue
		}
		if f.Model != "" && !strings.Contains(log.Model, f.Model) {
			continue
		}
		if f.Provider != "" && !strings.Contains(log.Provider, f.Provider) {
			continue
		}
		filtered = append(filtered, log)
	}

	total := len(filtered)
	if offset >= total {
		return []RequestLog{}, total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total
}

// newestLocked copies the newest n logs, newest first. Caller holds mu.
func (s *Store) newestLocked(n int) []RequestLog {
	out := make([]RequestLog, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + len(s.ring)*2) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// Subscribe returns a channel receiving every future log and a cancel
// function. Slow subscribers lose entries instead of blocking Record.
func (s *Store) Subscribe() (<-chan RequestLog, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan RequestLog, 64)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}
