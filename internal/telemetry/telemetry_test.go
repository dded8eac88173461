package telemetry

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func successLog(provider, model string, durationMs int64, cost float64) RequestLog {
	code := 200
	return RequestLog{
		Model:         model,
		Provider:      provider,
		Status:        StatusSuccess,
		StatusCode:    &code,
		DurationMs:    durationMs,
		EstimatedCost: &cost,
	}
}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	s := NewStore(10)
	s.Record(RequestLog{Model: "m", Status: StatusSuccess})

	snap := s.Snapshot()
	if len(snap.Recent) != 1 {
		t.Fatalf("expected 1 recent log, got %d", len(snap.Recent))
	}
	if snap.Recent[0].ID == "" {
		t.Error("expected an assigned id")
	}
	if snap.Recent[0].Timestamp.IsZero() {
		t.Error("expected an assigned timestamp")
	}
}

func TestAggregateIdentities(t *testing.T) {
	s := NewStore(100)

	s.Record(successLog("p1", "m1", 100, 0.01))
	s.Record(successLog("p1", "m1", 200, 0.02))
	s.Record(RequestLog{Model: "m2", Provider: "p2", Status: StatusError, DurationMs: 50})
	s.Record(RequestLog{Model: "m3", Status: StatusNoProvider})

	snap := s.Snapshot()

	if snap.Successful+snap.Failed+snap.NoProvider != snap.Requests {
		t.Errorf("status counts must sum to requests: %d+%d+%d != %d",
			snap.Successful, snap.Failed, snap.NoProvider, snap.Requests)
	}
	if math.Abs(snap.AvgDurationMs*float64(snap.Requests)-float64(snap.SumDurationMs)) > 0.001 {
		t.Errorf("avg*requests != sum: %f * %d != %d", snap.AvgDurationMs, snap.Requests, snap.SumDurationMs)
	}
	if math.Abs(snap.TotalCost-0.03) > 1e-9 {
		t.Errorf("expected total cost 0.03, got %f", snap.TotalCost)
	}

	p1 := snap.Providers["p1"]
	if p1.Requests != 2 || p1.Successful != 2 {
		t.Errorf("unexpected p1 stats: %+v", p1)
	}
	if snap.Models["m1"].Requests != 2 {
		t.Errorf("unexpected m1 stats: %+v", snap.Models["m1"])
	}
}

func TestTierHistogram(t *testing.T) {
	s := NewStore(10)
	for _, tier := range []string{"simple", "simple", "complex"} {
		s.Record(RequestLog{Model: "m", Status: StatusSuccess, ComplexityTier: tier})
	}
	snap := s.Snapshot()
	if snap.Tiers["simple"] != 2 || snap.Tiers["complex"] != 1 {
		t.Errorf("unexpected tier histogram: %v", snap.Tiers)
	}
}

func TestRingEvictionKeepsAggregates(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 20; i++ {
		s.Record(successLog("p", "m", 10, 0.001))
	}

	snap := s.Snapshot()
	if snap.Requests != 20 {
		t.Errorf("aggregates are lifetime totals: expected 20 requests, got %d", snap.Requests)
	}
	if len(snap.Recent) != 5 {
		t.Errorf("ring bounds recent logs: expected 5, got %d", len(snap.Recent))
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := NewStore(10)
	base := time.Now()
	for i := 0; i < 3; i++ {
		s.Record(RequestLog{
			ID:        fmt.Sprintf("log-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Model:     "m",
			Status:    StatusSuccess,
		})
	}

	logs, total := s.Recent(10, 0, Filter{})
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	if logs[0].ID != "log-2" || logs[2].ID != "log-0" {
		t.Errorf("expected newest first, got %s ... %s", logs[0].ID, logs[2].ID)
	}
}

func TestRecentFilters(t *testing.T) {
	s := NewStore(10)
	s.Record(successLog("openai", "gpt-4-turbo", 10, 0))
	s.Record(successLog("anthropic", "claude-3-opus", 10, 0))
	s.Record(RequestLog{Model: "gpt-4-turbo", Provider: "openai", Status: StatusError})

	logs, total := s.Recent(10, 0, Filter{Status: StatusError})
	if total != 1 || logs[0].Status != StatusError {
		t.Errorf("status filter failed: total=%d", total)
	}

	_, total = s.Recent(10, 0, Filter{Model: "gpt-4"})
	if total != 2 {
		t.Errorf("model substring filter: expected 2, got %d", total)
	}

	_, total = s.Recent(10, 0, Filter{Provider: "anthro"})
	if total != 1 {
		t.Errorf("provider substring filter: expected 1, got %d", total)
	}
}

func TestRecentPagination(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 7; i++ {
		s.Record(successLog("p", "m", 1, 0))
	}

	page, total := s.Recent(3, 0, Filter{})
	if total != 7 || len(page) != 3 {
		t.Errorf("expected page of 3/7, got %d/%d", len(page), total)
	}
	page, _ = s.Recent(3, 6, Filter{})
	if len(page) != 1 {
		t.Errorf("expected final page of 1, got %d", len(page))
	}
	page, _ = s.Recent(3, 10, Filter{})
	if len(page) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(page))
	}
}

func TestSubscribeReceivesLogs(t *testing.T) {
	s := NewStore(10)
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Record(successLog("p", "m", 1, 0))

	select {
	case log := <-ch:
		if log.Provider != "p" {
			t.Errorf("unexpected log: %+v", log)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a log on the subscription channel")
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	s := NewStore(10)
	ch, cancel := s.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}

	// Recording after cancel must not panic.
	s.Record(successLog("p", "m", 1, 0))
}
