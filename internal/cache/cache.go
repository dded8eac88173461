package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is the file-backed response cache. One file per entry under dir,
// named <hex-fingerprint>.json. Reads are TTL-checked and delete stale
// entries; writes are atomic (temp file + rename) and collapsed per
// fingerprint so concurrent identical requests persist at most one body.
type Cache struct {
	dir    string
	ttl    time.Duration // 0 disables expiration
	logger *slog.Logger
	puts   singleflight.Group
	now    func() time.Time
}

// entry is the on-disk representation.
type entry struct {
	CreatedAt int64           `json:"created_at"` // unix seconds
	Body      json.RawMessage `json:"body"`
}

// New creates a Cache rooted at dir. ttlSeconds == 0 means entries never
// expire.
func New(dir string, ttlSeconds int64, logger *slog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: logger.With("component", "cache"),
		now:    time.Now,
	}
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint+".json")
}

// Get returns the cached body for fingerprint if present and fresh.
// A stale entry is deleted and reported as a miss. Any read or decode
// error is a miss, never a request failure.
func (c *Cache) Get(fingerprint string) ([]byte, bool) {
	path := c.path(fingerprint)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("unreadable cache entry", "fingerprint", short, "error", err)
		return nil, false
	}

	if c.ttl > 0 {
		age := c.now().Sub(time.Unix(e.CreatedAt, 0))
		if age > c.ttl {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("remove stale cache entry", "fingerprint", short, "error", err)
			}
			return nil, false
		}
	}

	return e.Body, true
}

// Put stores body under fingerprint. Concurrent puts for the same
// fingerprint are collapsed to a single write. Bodies that are not valid
// JSON are not cached.
func (c *Cache) Put(fingerprint string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("cache: body is not valid JSON")
	}

	_, err, _ := c.puts.Do(fingerprint, func() (any, error) {
		return nil, c.write(fingerprint, body)
	})
	return err
}

func (c *Cache) write(fingerprint string, body []byte) error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}

	data, err := json.Marshal(entry{
		CreatedAt: c.now().Unix(),
		Body:      body,
	})
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, fingerprint+".tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()              //nolint:errcheck
		os.Remove(tmp.Name())    //nolint:errcheck
		return fmt.Errorf("cache: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(fingerprint)); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

// Purge removes every cache entry.
func (c *Cache) Purge() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cache: read dir: %w", err)
	}
	for _, de := range entries {
		if !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cache: purge %s: %w", de.Name(), err)
		}
	}
	return nil
}

// Sweep physically removes expired entries and returns how many were
// deleted. A no-op when expiration is disabled.
func (c *Cache) Sweep() int {
	if c.ttl == 0 {
		return 0
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for _, de := range entries {
		name := de.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(c.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if time.Unix(e.CreatedAt, 0).Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		c.logger.Info("cache sweep", "removed", removed)
	}
	return removed
}
