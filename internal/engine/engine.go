package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clawinfra/clawrouter/internal/cache"
	"github.com/clawinfra/clawrouter/internal/config"
	"github.com/clawinfra/clawrouter/internal/providers"
	"github.com/clawinfra/clawrouter/internal/registry"
	"github.com/clawinfra/clawrouter/internal/scorer"
	"github.com/clawinfra/clawrouter/internal/session"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

// Snapshot bundles the immutable per-config state a request binds at
// entry: the config document, the registry built over it, and the cache
// configured by it. Config saves publish a fresh Snapshot; in-flight
// requests keep the one they captured.
type Snapshot struct {
	Config   *config.Config
	Registry *registry.Registry
	Cache    *cache.Cache
}

// Options carry per-request routing inputs decoded by the HTTP layer.
type Options struct {
	// ProfileOverride selects a profile for this request only (from a
	// router/<name> model id). Empty means the active profile.
	ProfileOverride string
	// SessionID enables session pinning when sessions are configured.
	SessionID string
}

// Outcome is the routed result: the HTTP response to return and the
// telemetry log that was recorded. NoResponse is set when the client
// went away and nothing should be written.
type Outcome struct {
	StatusCode int
	Body       []byte
	Log        telemetry.RequestLog
	NoResponse bool
}

// Engine orchestrates scoring, candidate selection, cache lookups, and
// the sequential failover loop.
type Engine struct {
	invoker   providers.Invoker
	telemetry *telemetry.Store
	sessions  *session.Store
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Engine.
func New(invoker providers.Invoker, store *telemetry.Store, sessions *session.Store, logger *slog.Logger) *Engine {
	return &Engine{
		invoker:   invoker,
		telemetry: store,
		sessions:  sessions,
		logger:    logger.With("component", "engine"),
		now:       time.Now,
	}
}

// Route runs the full pipeline for one request. Providers are tried
// strictly in order, each at most once.
func (e *Engine) Route(ctx context.Context, snap *Snapshot, req *providers.ChatRequest, opts Options) *Outcome {
	start := e.now()
	cfg := snap.Config
	log := telemetry.RequestLog{
		Timestamp:      start,
		Model:          req.Model,
		ProvidersTried: []string{},
	}

	budget, cancel := context.WithTimeout(ctx, time.Duration(cfg.Routing.TotalTimeoutSeconds)*time.Second)
	defer cancel()

	// Session pin short-circuit: a live pin skips scoring and selection
	// entirely; a failed pinned attempt falls through to normal routing.
	if cfg.Session.Enabled && opts.SessionID != "" {
		if out := e.tryPinned(budget, snap, req, opts.SessionID, start, log); out != nil {
			return out
		}
	}

	// 1. Score.
	score := scorer.Evaluate(req.Text(), req.MaxTokens(), cfg.Scorer)
	log.ComplexityTier = score.Tier.Wire()
	v := score.Value
	log.ComplexityScore = &v
	e.logger.Info("scored request",
		"tier", score.Tier.String(),
		"value", fmt.Sprintf("%.3f", score.Value),
		"confidence", fmt.Sprintf("%.3f", score.Confidence),
	)

	// 2. Resolve the target model through the profile's tier mapping.
	profile := cfg.Active()
	if opts.ProfileOverride != "" {
		if p, ok := cfg.Profile(opts.ProfileOverride); ok {
			profile = p
		}
	}
	target := req.Model
	pinnedProvider := ""
	if mapping, ok := profile.ModelMapping[score.Tier.Wire()]; ok && mapping.ModelID != "" {
		target = mapping.ModelID
		pinnedProvider = mapping.ProviderID
	}
	if target != req.Model {
		log.EffectiveModel = target
		e.logger.Info("model mapping applied", "requested", req.Model, "effective", target)
	}

	// 3. Candidates.
	candidates := snap.Registry.Lookup(target, pinnedProvider)
	if len(candidates) == 0 {
		log.Status = telemetry.StatusNoProvider
		log.ErrorMessage = ErrNoCandidate.Error()
		log.DurationMs = e.elapsedMs(start)
		e.telemetry.Record(log)
		return &Outcome{
			StatusCode: http.StatusServiceUnavailable,
			Body:       errorBody("no_provider", fmt.Sprintf("no provider found for model %q", target), nil, 0),
			Log:        log,
		}
	}

	// 4. Cache lookup. Streaming requests bypass the cache entirely.
	useCache := cfg.Cache.Enabled && !req.Stream()
	fingerprint := ""
	if useCache {
		fingerprint = cache.Fingerprint(target, req)
		if body, ok := snap.Cache.Get(fingerprint); ok {
			code := http.StatusOK
			log.Status = telemetry.StatusSuccess
			log.StatusCode = &code
			log.Provider = candidates[0].Provider.ID
			log.DurationMs = e.elapsedMs(start)
			log.CacheStatus = "hit"
			e.telemetry.Record(log)
			return &Outcome{StatusCode: code, Body: body, Log: log}
		}
		log.CacheStatus = "miss"
	}

	// 5. Failover loop.
	lastKind := failNone
	lastStatus := 0
	lastMessage := ""

	for _, cand := range candidates {
		if budget.Err() != nil {
			if ctx.Err() == context.Canceled {
				return e.cancelled(log, start)
			}
			lastKind, lastMessage = failTimeout, ErrBudgetExceeded.Error()
			break
		}

		log.ProvidersTried = append(log.ProvidersTried, cand.Provider.ID)

		attemptCtx, attemptCancel := context.WithTimeout(budget, time.Duration(cfg.Routing.AttemptTimeoutSeconds)*time.Second)
		res, err := e.invoker.Invoke(attemptCtx, cand.Provider, target, req)
		attemptCancel()

		if err != nil {
			if ctx.Err() == context.Canceled {
				return e.cancelled(log, start)
			}
			if attemptCtx.Err() == context.DeadlineExceeded {
				lastKind = failTimeout
				lastMessage = fmt.Sprintf("provider %s: attempt timed out", cand.Provider.ID)
			} else {
				lastKind = failNetwork
				lastMessage = fmt.Sprintf("provider %s: %v", cand.Provider.ID, err)
			}
			e.logger.Warn("provider attempt failed", "provider", cand.Provider.ID, "error", err)
			continue
		}

		if res.OK() {
			return e.success(snap, req, &cand, target, res, fingerprint, useCache, opts.SessionID, start, log)
		}

		lastKind = failUpstream
		lastStatus = res.StatusCode
		lastMessage = providers.ErrorMessage(res.Body)
		e.logger.Warn("provider returned error status", "provider", cand.Provider.ID, "status", res.StatusCode)

		if !retryableStatus(res.StatusCode) && cfg.Routing.OnClientError == config.OnClientErrorStrict {
			break
		}
	}

	// 6. Exhaustion.
	code := lastStatus
	switch {
	case code != 0:
	case lastKind == failTimeout:
		code = http.StatusGatewayTimeout
	default:
		code = http.StatusBadGateway
	}

	log.Status = telemetry.StatusError
	log.StatusCode = &code
	log.ErrorMessage = fmt.Sprintf("%s: %s", ErrAllFailed.Error(), lastMessage)
	log.DurationMs = e.elapsedMs(start)
	e.telemetry.Record(log)

	return &Outcome{
		StatusCode: code,
		Body:       errorBody("upstream", lastMessage, log.ProvidersTried, lastStatus),
		Log:        log,
	}
}

// tryPinned attempts the session's pinned provider directly. Returns nil
// when the pin is absent, dead, or the attempt fails, in which case
// normal routing proceeds.
func (e *Engine) tryPinned(ctx context.Context, snap *Snapshot, req *providers.ChatRequest, sessionID string, start time.Time, log telemetry.RequestLog) *Outcome {
	cfg := snap.Config
	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second
	pin, ok := e.sessions.Get(sessionID, ttl)
	if !ok {
		return nil
	}
	provider, ok := snap.Registry.Provider(pin.ProviderID)
	if !ok || !provider.Enabled || !provider.HasModel(pin.ModelID) {
		return nil
	}

	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Routing.AttemptTimeoutSeconds)*time.Second)
	res, err := e.invoker.Invoke(attemptCtx, provider, pin.ModelID, req)
	cancel()
	if err != nil || !res.OK() {
		e.logger.Warn("pinned session provider failed, falling through", "session", sessionID, "provider", pin.ProviderID)
		return nil
	}

	e.sessions.Touch(sessionID)

	log.SessionPinned = true
	log.EffectiveModel = pin.ModelID
	log.CacheStatus = "skip"
	log.ProvidersTried = append(log.ProvidersTried, provider.ID)
	cand := registry.Candidate{Provider: provider}
	if m, ok := provider.Model(pin.ModelID); ok {
		cand.Model = m
	}
	return e.success(snap, req, &cand, pin.ModelID, res, "", false, sessionID, start, log)
}

// success finalises a 2xx attempt: cost estimation, cache write, session
// pin, telemetry.
func (e *Engine) success(snap *Snapshot, req *providers.ChatRequest, cand *registry.Candidate, target string, res *providers.Result, fingerprint string, useCache bool, sessionID string, start time.Time, log telemetry.RequestLog) *Outcome {
	log.Status = telemetry.StatusSuccess
	code := res.StatusCode
	log.StatusCode = &code
	log.Provider = cand.Provider.ID
	log.InputTokens = res.InputTokens
	log.OutputTokens = res.OutputTokens

	if cand.Model != nil && (res.InputTokens != nil || res.OutputTokens != nil) {
		var in, out int64
		if res.InputTokens != nil {
			in = *res.InputTokens
		}
		if res.OutputTokens != nil {
			out = *res.OutputTokens
		}
		cost := (float64(in)*cand.Model.InputCostPer1M + float64(out)*cand.Model.OutputCostPer1M) / 1_000_000
		log.EstimatedCost = &cost
	}

	if useCache && fingerprint != "" {
		if err := snap.Cache.Put(fingerprint, res.Body); err != nil {
			e.logger.Warn("cache write failed", "error", err)
		}
	}

	if snap.Config.Session.Enabled && sessionID != "" {
		e.sessions.Set(sessionID, cand.Provider.ID, target)
	}

	log.DurationMs = e.elapsedMs(start)
	e.telemetry.Record(log)

	return &Outcome{StatusCode: res.StatusCode, Body: res.Body, Log: log}
}

// cancelled records a client-cancelled request. No response is written.
func (e *Engine) cancelled(log telemetry.RequestLog, start time.Time) *Outcome {
	log.Status = telemetry.StatusError
	log.ErrorMessage = "client cancelled"
	log.DurationMs = e.elapsedMs(start)
	e.telemetry.Record(log)
	return &Outcome{NoResponse: true, Log: log}
}

func (e *Engine) elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// errorBody renders the structured error responses of the routing
// endpoint.
func errorBody(kind, message string, providersTried []string, lastStatus int) []byte {
	inner := map[string]any{
		"type":    kind,
		"message": message,
	}
	if providersTried != nil {
		inner["providers_tried"] = providersTried
	}
	if lastStatus != 0 {
		inner["last_status"] = lastStatus
	}
	body, err := json.Marshal(map[string]any{"error": inner})
	if err != nil {
		return []byte(`{"error":{"type":"internal","message":"encoding failure"}}`)
	}
	return body
}
