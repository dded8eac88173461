package registry

import (
	"sort"

	"github.com/clawinfra/clawrouter/internal/config"
)

// Candidate is a (provider, model) pair eligible to serve a request.
type Candidate struct {
	Provider *config.Provider
	Model    *config.Model
}

// Registry is the typed provider catalogue for one config snapshot. It
// is built once per snapshot and never mutated, so it is safe for
// concurrent readers.
type Registry struct {
	providers []*config.Provider       // insertion order
	byModel   map[string][]*config.Provider
}

// New builds a Registry over cfg, validating the document first.
func New(cfg *config.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		byModel: make(map[string][]*config.Provider),
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		r.providers = append(r.providers, p)
		for j := range p.Models {
			id := p.Models[j].ID
			r.byModel[id] = append(r.byModel[id], p)
		}
	}
	return r, nil
}

// Lookup returns the ordered candidate list for a model. providerID,
// when non-empty, pins selection to that provider. Disabled providers
// are omitted, never demoted. Ordering: priority descending, then id
// ascending for ties.
func (r *Registry) Lookup(modelID, providerID string) []Candidate {
	var out []Candidate
	for _, p := range r.byModel[modelID] {
		if !p.Enabled {
			continue
		}
		if providerID != "" && p.ID != providerID {
			continue
		}
		m, _ := p.Model(modelID)
		out = append(out, Candidate{Provider: p, Model: m})
	}
	sortCandidates(out)
	return out
}

// ByTier returns the enabled providers in the given commercial tier,
// ordered like Lookup.
func (r *Registry) ByTier(tier config.ProviderTier) []*config.Provider {
	var out []*config.Provider
	for _, p := range r.providers {
		if p.Enabled && p.Tier == tier {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Provider returns the provider with the given id.
func (r *Registry) Provider(id string) (*config.Provider, bool) {
	for _, p := range r.providers {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Providers returns all providers in insertion order.
func (r *Registry) Providers() []*config.Provider {
	return r.providers
}

func sortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Provider.Priority != cands[j].Provider.Priority {
			return cands[i].Provider.Priority > cands[j].Provider.Priority
		}
		return cands[i].Provider.ID < cands[j].Provider.ID
	})
}
