package telemetry

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Archive mirrors request logs into a sqlite database so history
// survives restarts. Writes are handed to a background goroutine through
// a buffered channel; the in-memory Store stays the source of truth for
// snapshots and the management API.
type Archive struct {
	db     *sql.DB
	logs   chan RequestLog
	done   chan struct{}
	logger *slog.Logger
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS request_logs (
	id               TEXT PRIMARY KEY,
	timestamp        TEXT NOT NULL,
	model            TEXT NOT NULL,
	effective_model  TEXT,
	provider         TEXT,
	status           TEXT NOT NULL,
	status_code      INTEGER,
	duration_ms      INTEGER NOT NULL,
	input_tokens     INTEGER,
	output_tokens    INTEGER,
	estimated_cost   REAL,
	complexity_tier  TEXT,
	complexity_score REAL,
	error_message    TEXT,
	providers_tried  TEXT,
	cache_status     TEXT,
	session_pinned   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs(timestamp);
`

// NewArchive opens (or creates) the archive database at path.
func NewArchive(path string, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open archive: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("telemetry: wal mode: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("telemetry: migrate archive: %w", err)
	}

	a := &Archive{
		db:     db,
		logs:   make(chan RequestLog, 256),
		done:   make(chan struct{}),
		logger: logger.With("component", "telemetry-archive"),
	}
	go a.writer()
	return a, nil
}

// Record queues a log for archival. Never blocks the caller; when the
// queue is full the log is dropped from the archive (the ring still has
// it).
func (a *Archive) Record(log RequestLog) {
	select {
	case a.logs <- log:
	default:
		a.logger.Warn("archive queue full, dropping log", "id", log.ID)
	}
}

func (a *Archive) writer() {
	defer close(a.done)
	for log := range a.logs {
		if err := a.insert(log); err != nil {
			a.logger.Warn("archive insert failed", "id", log.ID, "error", err)
		}
	}
}

func (a *Archive) insert(log RequestLog) error {
	tried := ""
	for i, p := range log.ProvidersTried {
		if i > 0 {
			tried += ","
		}
		tried += p
	}

	pinned := 0
	if log.SessionPinned {
		pinned = 1
	}

	_, err := a.db.Exec(
		`INSERT OR REPLACE INTO request_logs
		 (id, timestamp, model, effective_model, provider, status, status_code,
		  duration_ms, input_tokens, output_tokens, estimated_cost,
		  complexity_tier, complexity_score, error_message, providers_tried,
		  cache_status, session_pinned)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.Timestamp.Format(time.RFC3339Nano),
		log.Model,
		nullable(log.EffectiveModel),
		nullable(log.Provider),
		log.Status,
		log.StatusCode,
		log.DurationMs,
		log.InputTokens,
		log.OutputTokens,
		log.EstimatedCost,
		nullable(log.ComplexityTier),
		log.ComplexityScore,
		nullable(log.ErrorMessage),
		tried,
		nullable(log.CacheStatus),
		pinned,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Close drains pending writes and closes the database.
func (a *Archive) Close() error {
	close(a.logs)
	<-a.done
	return a.db.Close()
}
