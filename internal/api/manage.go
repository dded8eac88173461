package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/clawinfra/clawrouter/internal/config"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": message},
	})
}

// handleConfig serves the current config and accepts replacements.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.current().snap.Config)
	case http.MethodPost:
		st := s.current()
		st.auth.Middleware(http.HandlerFunc(s.updateConfig)).ServeHTTP(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// updateConfig validates, persists, and publishes a new config document.
// In-flight requests keep the snapshot they already hold.
func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	newCfg := config.DefaultConfig()
	if err := json.NewDecoder(r.Body).Decode(newCfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid config body: "+err.Error())
		return
	}
	if err := newCfg.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := newCfg.Save(s.configPath); err != nil {
		s.logger.Error("config save failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to persist config")
		return
	}
	if err := s.publish(newCfg); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("config updated", "active_profile", newCfg.ActiveProfile)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleStats returns the telemetry snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.telemetry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":         snap.Requests,
		"successful":       snap.Successful,
		"failed":           snap.Failed,
		"no_provider":      snap.NoProvider,
		"total_cost":       snap.TotalCost,
		"avg_duration_ms":  snap.AvgDurationMs,
		"active_profile":   s.current().snap.Config.ActiveProfile,
		"providers":        snap.Providers,
		"models":           snap.Models,
		"complexity_tiers": snap.Tiers,
		"recent_requests":  snap.Recent,
		"active_sessions":  s.sessions.Count(),
	})
}

// handleLogs serves a filtered page of request logs, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(q.Get("offset"), 0)

	logs, total := s.telemetry.Recent(limit, offset, telemetry.Filter{
		Status:   q.Get("status"),
		Model:    q.Get("model"),
		Provider: q.Get("provider"),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// handleCachePurge removes every cache entry.
func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.current()
	st.auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if err := st.snap.Cache.Purge(); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})).ServeHTTP(w, r)
}

// handleAuthToken exchanges the admin key for a bearer token.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.current()
	if !st.auth.Enabled() {
		writeJSONError(w, http.StatusBadRequest, "management auth is not configured")
		return
	}

	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}

	token, err := st.auth.IssueToken(body.APIKey)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}
