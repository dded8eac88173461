package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/clawinfra/clawrouter/internal/cache"
	"github.com/clawinfra/clawrouter/internal/config"
	"github.com/clawinfra/clawrouter/internal/providers"
	"github.com/clawinfra/clawrouter/internal/registry"
	"github.com/clawinfra/clawrouter/internal/session"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeInvoker scripts upstream behavior per provider id.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []string // "<provider>/<model>"
	respond map[string]func() (*providers.Result, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, p *config.Provider, model string, _ *providers.ChatRequest) (*providers.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p.ID+"/"+model)
	f.mu.Unlock()

	if fn, ok := f.respond[p.ID]; ok {
		return fn()
	}
	return &providers.Result{StatusCode: 200, Body: []byte(`{"choices":[]}`)}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ok(body string, in, out int64) func() (*providers.Result, error) {
	return func() (*providers.Result, error) {
		return &providers.Result{StatusCode: 200, Body: []byte(body), InputTokens: &in, OutputTokens: &out}, nil
	}
}

func status(code int) func() (*providers.Result, error) {
	return func() (*providers.Result, error) {
		return &providers.Result{StatusCode: code, Body: []byte(`{"error":{"message":"upstream says no"}}`)}, nil
	}
}

func netErr() func() (*providers.Result, error) {
	return func() (*providers.Result, error) {
		return nil, errors.New("connection refused")
	}
}

// testConfig builds a config with two providers carrying gpt-4o at
// priorities 10 (p1) and 5 (p2).
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers = []config.Provider{
		{
			ID: "p1", Name: "P1", Type: config.ProviderOpenAI,
			Tier: config.TierSubscription, Enabled: true, Priority: 10,
			Models: []config.Model{{
				ID: "gpt-4o", Name: "GPT-4o",
				InputCostPer1M: 2.5, OutputCostPer1M: 10,
				ContextWindow: 128000,
			}},
		},
		{
			ID: "p2", Name: "P2", Type: config.ProviderOpenAI,
			Tier: config.TierCheap, Enabled: true, Priority: 5,
			Models: []config.Model{{
				ID: "gpt-4o", Name: "GPT-4o",
				InputCostPer1M: 1, OutputCostPer1M: 2,
				ContextWindow: 128000,
			}},
		},
	}
	cfg.Profiles = []config.Profile{{Name: "auto", ModelMapping: map[string]config.ModelMapping{}}}
	cfg.ActiveProfile = "auto"
	cfg.Cache.Enabled = false
	return cfg
}

func newSnapshot(t *testing.T, cfg *config.Config) *Snapshot {
	t.Helper()
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	dir := cfg.Cache.CacheDir
	if dir == "" || dir == "cache" {
		dir = t.TempDir()
	}
	return &Snapshot{
		Config:   cfg,
		Registry: reg,
		Cache:    cache.New(dir, cfg.Cache.TTLSeconds, newTestLogger()),
	}
}

func newEngine(inv providers.Invoker) (*Engine, *telemetry.Store, *session.Store) {
	store := telemetry.NewStore(100)
	sessions := session.NewStore()
	return New(inv, store, sessions, newTestLogger()), store, sessions
}

func makeRequest(t *testing.T, body string) *providers.ChatRequest {
	t.Helper()
	var req providers.ChatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("bad request fixture: %v", err)
	}
	return &req
}

func TestRouteSuccessWithCost(t *testing.T) {
	upstream := `{"choices":[{"message":{"content":"hi there"}}],"usage":{"prompt_tokens":5,"completion_tokens":7}}`
	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": ok(upstream, 5, 7),
	}}
	eng, store, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", out.StatusCode)
	}
	if string(out.Body) != upstream {
		t.Errorf("response body must be the upstream body verbatim")
	}
	if out.Log.Status != telemetry.StatusSuccess || out.Log.Provider != "p1" {
		t.Errorf("unexpected log: %+v", out.Log)
	}
	if out.Log.InputTokens == nil || *out.Log.InputTokens != 5 {
		t.Errorf("expected input_tokens 5, got %v", out.Log.InputTokens)
	}
	wantCost := 5*2.5/1e6 + 7*10.0/1e6
	if out.Log.EstimatedCost == nil || math.Abs(*out.Log.EstimatedCost-wantCost) > 1e-12 {
		t.Errorf("expected cost %v, got %v", wantCost, out.Log.EstimatedCost)
	}

	snapTel := store.Snapshot()
	if snapTel.Requests != 1 || snapTel.Successful != 1 {
		t.Errorf("telemetry not recorded: %+v", snapTel)
	}
}

func TestFailoverToSecondProvider(t *testing.T) {
	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": status(500),
		"p2": ok(`{"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":1}}`, 1, 1),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != 200 {
		t.Fatalf("expected 200 from p2, got %d", out.StatusCode)
	}
	want := []string{"p1", "p2"}
	if len(out.Log.ProvidersTried) != 2 || out.Log.ProvidersTried[0] != want[0] || out.Log.ProvidersTried[1] != want[1] {
		t.Errorf("expected providers_tried %v, got %v", want, out.Log.ProvidersTried)
	}
	if out.Log.Status != telemetry.StatusSuccess || out.Log.Provider != "p2" {
		t.Errorf("unexpected log: %+v", out.Log)
	}
}

func TestExhaustionPassesLastStatus(t *testing.T) {
	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": status(500),
		"p2": status(503),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != 503 {
		t.Errorf("expected last provider's status 503, got %d", out.StatusCode)
	}
	if len(out.Log.ProvidersTried) != 2 {
		t.Errorf("every candidate must be tried exactly once, got %v", out.Log.ProvidersTried)
	}
	if out.Log.Status != telemetry.StatusError {
		t.Errorf("expected error status, got %s", out.Log.Status)
	}

	var body struct {
		Error struct {
			Type           string   `json:"type"`
			ProvidersTried []string `json:"providers_tried"`
			LastStatus     int      `json:"last_status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(out.Body, &body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body.Error.Type != "upstream" || body.Error.LastStatus != 503 || len(body.Error.ProvidersTried) != 2 {
		t.Errorf("unexpected error body: %+v", body.Error)
	}
}

func TestNetworkExhaustionIs502(t *testing.T) {
	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": netErr(),
		"p2": netErr(),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502 at network exhaustion, got %d", out.StatusCode)
	}
}

func TestNoProvider(t *testing.T) {
	inv := &fakeInvoker{}
	eng, store, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"unknown-model","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", out.StatusCode)
	}
	if out.Log.Status != telemetry.StatusNoProvider {
		t.Errorf("expected no_provider log, got %s", out.Log.Status)
	}
	if len(out.Log.ProvidersTried) != 0 {
		t.Errorf("providers_tried must be empty, got %v", out.Log.ProvidersTried)
	}
	if inv.callCount() != 0 {
		t.Errorf("no upstream call expected, got %d", inv.callCount())
	}

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(out.Body, &body); err != nil || body.Error.Type != "no_provider" {
		t.Errorf("expected no_provider error body, got %s", out.Body)
	}

	snapTel := store.Snapshot()
	if snapTel.NoProvider != 1 {
		t.Errorf("expected no_provider counted, got %+v", snapTel)
	}
}

func TestModelMappingRewritesOutboundModel(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = append(cfg.Providers, config.Provider{
		ID: "reasoner", Name: "Reasoner", Type: config.ProviderOpenAI,
		Tier: config.TierSubscription, Enabled: true, Priority: 1,
		Models: []config.Model{{ID: "o1", Name: "o1", InputCostPer1M: 15, OutputCostPer1M: 60, ContextWindow: 200000}},
	})
	cfg.Profiles[0].ModelMapping = map[string]config.ModelMapping{
		"complex":   {ModelID: "o1"},
		"reasoning": {ModelID: "o1"},
	}

	inv := &fakeInvoker{}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	// max_tokens past the force threshold upgrades the tier to at least
	// Complex, which maps to o1.
	req := makeRequest(t, `{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"hi"}],"max_tokens":200000}`)
	out := eng.Route(context.Background(), snap, req, Options{})

	if out.StatusCode != 200 {
		t.Fatalf("expected success, got %d: %s", out.StatusCode, out.Body)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "reasoner/o1" {
		t.Errorf("expected outbound model o1 on reasoner, got %v", inv.calls)
	}
	if out.Log.EffectiveModel != "o1" {
		t.Errorf("expected effective_model o1, got %q", out.Log.EffectiveModel)
	}
	if out.Log.ComplexityTier != "complex" && out.Log.ComplexityTier != "reasoning" {
		t.Errorf("expected tier at least complex, got %s", out.Log.ComplexityTier)
	}
}

func TestCacheHitShortCircuits(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.TTLSeconds = 3600
	cfg.Cache.CacheDir = t.TempDir()

	upstream := `{"choices":[{"message":{"content":"cached answer"}}],"usage":{"prompt_tokens":2,"completion_tokens":3}}`
	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": ok(upstream, 2, 3),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"same question"}]}`

	first := eng.Route(context.Background(), snap, makeRequest(t, body), Options{})
	if first.StatusCode != 200 || first.Log.CacheStatus != "miss" {
		t.Fatalf("first request should miss: %+v", first.Log)
	}

	second := eng.Route(context.Background(), snap, makeRequest(t, body), Options{})
	if second.StatusCode != 200 {
		t.Fatalf("expected 200 from cache, got %d", second.StatusCode)
	}
	if string(second.Body) != upstream {
		t.Errorf("cached body mismatch")
	}
	if second.Log.CacheStatus != "hit" {
		t.Errorf("expected cache hit, got %q", second.Log.CacheStatus)
	}
	if second.Log.Provider != "p1" {
		t.Errorf("cache hit log must carry the first candidate's provider, got %q", second.Log.Provider)
	}
	if second.Log.DurationMs >= 10 {
		t.Errorf("cache hit duration should be ~0, got %d", second.Log.DurationMs)
	}
	if inv.callCount() != 1 {
		t.Errorf("expected exactly one upstream invocation, got %d", inv.callCount())
	}
}

func TestStreamingBypassesCache(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.CacheDir = t.TempDir()

	inv := &fakeInvoker{}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"q"}],"stream":true}`
	for i := 0; i < 2; i++ {
		out := eng.Route(context.Background(), snap, makeRequest(t, body), Options{})
		if out.StatusCode != 200 {
			t.Fatalf("expected success, got %d", out.StatusCode)
		}
		if out.Log.CacheStatus != "" {
			t.Errorf("streaming requests must not touch the cache, got %q", out.Log.CacheStatus)
		}
	}
	if inv.callCount() != 2 {
		t.Errorf("expected 2 upstream invocations for streaming, got %d", inv.callCount())
	}
}

func TestStrictPolicyAbortsOn4xx(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.OnClientError = config.OnClientErrorStrict

	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": status(400),
		"p2": ok(`{"choices":[]}`, 1, 1),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != 400 {
		t.Errorf("strict policy must surface the 4xx, got %d", out.StatusCode)
	}
	if len(out.Log.ProvidersTried) != 1 {
		t.Errorf("strict policy must not try further providers, got %v", out.Log.ProvidersTried)
	}
}

func TestContinuePolicyRetriesOn4xx(t *testing.T) {
	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": status(400),
		"p2": ok(`{"choices":[]}`, 1, 1),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != 200 {
		t.Errorf("continue policy should reach p2, got %d", out.StatusCode)
	}
	if len(out.Log.ProvidersTried) != 2 {
		t.Errorf("expected both providers tried, got %v", out.Log.ProvidersTried)
	}
}

func TestRateLimitAlwaysRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.OnClientError = config.OnClientErrorStrict // 429 retries regardless

	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": status(429),
		"p2": ok(`{"choices":[]}`, 1, 1),
	}}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if out.StatusCode != 200 || len(out.Log.ProvidersTried) != 2 {
		t.Errorf("429 must fail over even under strict policy: status=%d tried=%v", out.StatusCode, out.Log.ProvidersTried)
	}
}

func TestClientCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": func() (*providers.Result, error) {
			cancel()
			return nil, context.Canceled
		},
	}}
	eng, store, _ := newEngine(inv)
	snap := newSnapshot(t, testConfig())

	out := eng.Route(ctx, snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{})

	if !out.NoResponse {
		t.Error("cancelled request must not produce a response")
	}
	if out.Log.Status != telemetry.StatusError || out.Log.ErrorMessage != "client cancelled" {
		t.Errorf("expected client-cancelled error log, got %+v", out.Log)
	}

	snapTel := store.Snapshot()
	if snapTel.Successful != 0 {
		t.Error("cancelled request must never be recorded as success")
	}
}

func TestSessionPinning(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Enabled = true
	cfg.Session.TTLSeconds = 600

	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		// p1 has the higher priority; p2 will be pinned manually.
		"p1": ok(`{"choices":[]}`, 1, 1),
		"p2": ok(`{"choices":[]}`, 1, 1),
	}}
	eng, _, sessions := newEngine(inv)
	snap := newSnapshot(t, cfg)
	sessions.Set("sess-1", "p2", "gpt-4o")

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{SessionID: "sess-1"})

	if out.StatusCode != 200 {
		t.Fatalf("expected success, got %d", out.StatusCode)
	}
	if !out.Log.SessionPinned {
		t.Error("expected session_pinned log")
	}
	if out.Log.Provider != "p2" {
		t.Errorf("pinned provider must be used, got %s", out.Log.Provider)
	}
	if inv.callCount() != 1 || inv.calls[0] != "p2/gpt-4o" {
		t.Errorf("expected single pinned invocation, got %v", inv.calls)
	}
}

func TestSessionPinFallsThroughOnFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Enabled = true
	cfg.Session.TTLSeconds = 600

	inv := &fakeInvoker{respond: map[string]func() (*providers.Result, error){
		"p1": ok(`{"choices":[]}`, 1, 1),
		"p2": status(500),
	}}
	eng, _, sessions := newEngine(inv)
	snap := newSnapshot(t, cfg)
	sessions.Set("sess-1", "p2", "gpt-4o")

	out := eng.Route(context.Background(), snap, makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`), Options{SessionID: "sess-1"})

	if out.StatusCode != 200 {
		t.Fatalf("expected fallthrough success, got %d", out.StatusCode)
	}
	if out.Log.SessionPinned {
		t.Error("failed pin must not mark the log pinned")
	}
	if out.Log.Provider != "p1" {
		t.Errorf("expected normal routing after pin failure, got %s", out.Log.Provider)
	}
}

func TestProfileOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Providers = append(cfg.Providers, config.Provider{
		ID: "eco-p", Name: "Eco", Type: config.ProviderOpenAI,
		Tier: config.TierFree, Enabled: true, Priority: 1,
		Models: []config.Model{{ID: "mini", Name: "Mini", InputCostPer1M: 0.1, OutputCostPer1M: 0.2, ContextWindow: 32000}},
	})
	cfg.Profiles = append(cfg.Profiles, config.Profile{
		Name: "eco",
		ModelMapping: map[string]config.ModelMapping{
			"simple": {ModelID: "mini"},
		},
	})

	inv := &fakeInvoker{}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	out := eng.Route(context.Background(), snap,
		makeRequest(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`),
		Options{ProfileOverride: "eco"})

	if out.StatusCode != 200 {
		t.Fatalf("expected success, got %d: %s", out.StatusCode, out.Body)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "eco-p/mini" {
		t.Errorf("expected eco profile mapping to mini, got %v", inv.calls)
	}
}

func TestScorerDisabledRoutesSimple(t *testing.T) {
	cfg := testConfig()
	cfg.Scorer.Enabled = false

	inv := &fakeInvoker{}
	eng, _, _ := newEngine(inv)
	snap := newSnapshot(t, cfg)

	bigCode := fmt.Sprintf(`{"model":"gpt-4o","messages":[{"role":"user","content":%q}]}`,
		"```function class def import return => {} ;``` prove theorem derive")
	out := eng.Route(context.Background(), snap, makeRequest(t, bigCode), Options{})

	if out.Log.ComplexityTier != "simple" {
		t.Errorf("disabled scorer must report simple, got %s", out.Log.ComplexityTier)
	}
	if out.Log.ComplexityScore == nil || *out.Log.ComplexityScore != 0 {
		t.Errorf("disabled scorer must report value 0, got %v", out.Log.ComplexityScore)
	}
}
