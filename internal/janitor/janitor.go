package janitor

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Janitor runs background maintenance on cron schedules: sweeping
// expired cache entries off disk and dropping stale session pins.
type Janitor struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a stopped Janitor.
func New(logger *slog.Logger) *Janitor {
	return &Janitor{
		cron:   cron.New(),
		logger: logger.With("component", "janitor"),
	}
}

// Add registers fn under a standard 5-field cron spec. An empty spec
// disables the job.
func (j *Janitor) Add(name, spec string, fn func()) error {
	if spec == "" {
		return nil
	}
	_, err := j.cron.AddFunc(spec, func() {
		j.logger.Debug("janitor job running", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("janitor: add %s: %w", name, err)
	}
	return nil
}

// Start begins running scheduled jobs in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started", "jobs", len(j.cron.Entries()))
}

// Stop halts scheduling and waits for any running job to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}
