package session

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/clawinfra/clawrouter/internal/providers"
)

// Pin records which provider and model served a session last.
type Pin struct {
	ProviderID string
	ModelID    string
	LastActive time.Time
}

// Store is the in-memory session pin map. Pins are TTL-checked on read
// and swept periodically by the janitor.
type Store struct {
	mu   sync.RWMutex
	pins map[string]Pin
	now  func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		pins: make(map[string]Pin),
		now:  time.Now,
	}
}

// Get returns the pin for id if it exists and is younger than ttl.
func (s *Store) Get(id string, ttl time.Duration) (Pin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pin, ok := s.pins[id]
	if !ok {
		return Pin{}, false
	}
	if s.now().Sub(pin.LastActive) > ttl {
		return Pin{}, false
	}
	return pin, true
}

// Set records or refreshes a pin.
func (s *Store) Set(id, providerID, modelID string) {
	s.mu.Lock()
	s.pins[id] = Pin{ProviderID: providerID, ModelID: modelID, LastActive: s.now()}
	s.mu.Unlock()
}

// Touch refreshes a pin's last-active time.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	if pin, ok := s.pins[id]; ok {
		pin.LastActive = s.now()
		s.pins[id] = pin
	}
	s.mu.Unlock()
}

// Sweep removes pins older than ttl and returns how many were removed.
func (s *Store) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, pin := range s.pins {
		if now.Sub(pin.LastActive) > ttl {
			delete(s.pins, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of pins currently held (including expired
// ones not yet swept).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pins)
}

// ExtractID derives the session id for a request using a priority chain:
// the x-session-id header, then a conversation_id body field, then a
// fingerprint of the system prompt plus first user message. Returns ""
// when nothing identifies the conversation.
func ExtractID(header http.Header, req *providers.ChatRequest) string {
	if v := header.Get("x-session-id"); v != "" {
		return v
	}

	if raw, ok := req.Extra["conversation_id"]; ok {
		if s, ok := providers.ContentText(raw); ok && s != "" {
			return s
		}
	}

	var parts string
	for _, m := range req.Roles() {
		if m.Role == "system" || m.Role == "user" {
			parts += m.Content
		}
		if m.Role == "user" {
			break
		}
	}
	if parts == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(parts))
	return "fp:" + hex.EncodeToString(sum[:])
}
