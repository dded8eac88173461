package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clawinfra/clawrouter/internal/engine"
	"github.com/clawinfra/clawrouter/internal/providers"
	"github.com/clawinfra/clawrouter/internal/session"
)

// routerModelPrefix marks virtual model ids that select a profile for a
// single request: "router/<profile-name>".
const routerModelPrefix = "router/"

// handleChatCompletions is the routing endpoint.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req providers.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	st := s.current()
	opts := engine.Options{}

	if name, ok := strings.CutPrefix(req.Model, routerModelPrefix); ok {
		opts.ProfileOverride = name
		s.logger.Info("per-request profile override", "profile", name)
	}

	if st.snap.Config.Session.Enabled {
		opts.SessionID = session.ExtractID(r.Header, &req)
	}

	outcome := s.engine.Route(r.Context(), st.snap, &req, opts)
	if outcome.NoResponse {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(outcome.StatusCode)
	w.Write(outcome.Body) //nolint:errcheck
}

// modelEntry is one element of the OpenAI-style model list.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// handleModels lists every configured model plus the virtual
// router/<profile> entries.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.current().snap.Config
	models := make([]modelEntry, 0)

	for _, p := range cfg.Profiles {
		models = append(models, modelEntry{
			ID:      routerModelPrefix + p.Name,
			Object:  "model",
			Created: 1677610602,
			OwnedBy: "clawrouter",
		})
	}
	for _, p := range cfg.Providers {
		for _, m := range p.Models {
			models = append(models, modelEntry{
				ID:      m.ID,
				Object:  "model",
				Created: 1677610602,
				OwnedBy: p.Name,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   models,
	})
}
