package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// ErrInvalid wraps every validation failure so callers can map any of
// them to a single error kind (fatal at startup, 400 on management save).
var ErrInvalid = errors.New("config: invalid")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// wireTiers are the accepted model_mapping keys.
var wireTiers = map[string]bool{
	"simple":    true,
	"medium":    true,
	"complex":   true,
	"reasoning": true,
}

// Validate checks the document's internal consistency. It is run at load
// and before every management save.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	models := make(map[string]bool)
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.ID == "" {
			return invalidf("provider %d: empty id", i)
		}
		if seen[p.ID] {
			return invalidf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
		if !p.Type.Valid() {
			return invalidf("provider %q: unknown provider_type %q", p.ID, p.Type)
		}
		if !p.Tier.Valid() {
			return invalidf("provider %q: unknown tier %q", p.ID, p.Tier)
		}
		if p.Priority < 1 || p.Priority > 255 {
			return invalidf("provider %q: priority %d out of range [1,255]", p.ID, p.Priority)
		}
		for j := range p.Models {
			m := &p.Models[j]
			if m.ID == "" {
				return invalidf("provider %q: model %d has empty id", p.ID, j)
			}
			if m.InputCostPer1M < 0 || m.OutputCostPer1M < 0 {
				return invalidf("provider %q: model %q has negative cost", p.ID, m.ID)
			}
			if m.ContextWindow <= 0 {
				return invalidf("provider %q: model %q context_window must be positive", p.ID, m.ID)
			}
			models[m.ID] = true
		}
	}

	if _, ok := c.Profile(c.ActiveProfile); !ok {
		return invalidf("active_profile %q does not exist", c.ActiveProfile)
	}
	profileNames := make(map[string]bool, len(c.Profiles))
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.Name == "" {
			return invalidf("profile %d: empty name", i)
		}
		if profileNames[p.Name] {
			return invalidf("duplicate profile name %q", p.Name)
		}
		profileNames[p.Name] = true
		for tier, m := range p.ModelMapping {
			if !wireTiers[tier] {
				return invalidf("profile %q: unknown tier key %q", p.Name, tier)
			}
			// An unknown model with no provider pin resolves at request
			// time (and may yield no candidates). A pin is rejected when
			// the provider does not exist, or when no provider carries
			// the model; a pin to a provider that lacks a model carried
			// by some other provider is accepted.
			if m.ProviderID == "" {
				continue
			}
			pinned := -1
			for j := range c.Providers {
				if c.Providers[j].ID == m.ProviderID {
					pinned = j
					break
				}
			}
			if pinned < 0 {
				return invalidf("profile %q tier %q: unknown provider_id %q", p.Name, tier, m.ProviderID)
			}
			if m.ModelID != "" && !models[m.ModelID] {
				if !c.Providers[pinned].HasModel(m.ModelID) {
					return invalidf("profile %q tier %q: provider %q does not carry model %q",
						p.Name, tier, m.ProviderID, m.ModelID)
				}
			}
		}
	}

	if c.Cache.TTLSeconds < 0 {
		return invalidf("cache.ttl_seconds must not be negative")
	}
	if c.Session.TTLSeconds < 0 {
		return invalidf("session.ttl_seconds must not be negative")
	}
	if c.Telemetry.MaxLogs <= 0 {
		return invalidf("telemetry.max_logs must be positive")
	}

	switch c.Routing.OnClientError {
	case OnClientErrorContinue, OnClientErrorStrict:
	default:
		return invalidf("routing.on_client_error must be %q or %q", OnClientErrorContinue, OnClientErrorStrict)
	}
	if c.Routing.AttemptTimeoutSeconds <= 0 {
		return invalidf("routing.attempt_timeout_seconds must be positive")
	}
	if c.Routing.TotalTimeoutSeconds <= 0 {
		return invalidf("routing.total_timeout_seconds must be positive")
	}

	b := c.Scorer.TierBoundaries
	if !(b.SimpleUpper <= b.MediumUpper && b.MediumUpper <= b.ComplexUpper) {
		return invalidf("scorer.tier_boundaries must be non-decreasing")
	}
	if c.Scorer.TokenThresholds.ShortUpper >= c.Scorer.TokenThresholds.LongLower {
		return invalidf("scorer.token_thresholds: short_upper must be below long_lower")
	}

	for name, spec := range map[string]string{
		"janitor.cache_sweep":   c.Janitor.CacheSweep,
		"janitor.session_sweep": c.Janitor.SessionSweep,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return invalidf("%s: invalid cron expression %q: %v", name, spec, err)
		}
	}

	return nil
}
