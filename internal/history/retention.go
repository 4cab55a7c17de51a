package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultRetentionSchedule prunes the log every night at 03:00.
const DefaultRetentionSchedule = "0 3 * * *"

// Pruner is the part of Store the retention job needs.
type Pruner interface {
	Prune(ctx context.Context, keep int) (int64, error)
}

// Retention periodically trims the scan log to its newest entries.
type Retention struct {
	cron   *cron.Cron
	pruner Pruner
	keep   int
}

// NewRetention creates a job that keeps the newest keep records. Schedules use
// the standard 5-field cron format.
func NewRetention(pruner Pruner, keep int) *Retention {
	return &Retention{
		cron:   cron.New(),
		pruner: pruner,
		keep:   keep,
	}
}

// Schedule registers the prune job. An empty spec uses DefaultRetentionSchedule.
func (r *Retention) Schedule(spec string) error {
	if spec == "" {
		spec = DefaultRetentionSchedule
	}
	if _, err := r.cron.AddFunc(spec, r.RunOnce); err != nil {
		return fmt.Errorf("registering retention schedule %q: %w", spec, err)
	}
	return nil
}

// RunOnce prunes immediately.
func (r *Retention) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := r.pruner.Prune(ctx, r.keep)
	if err != nil {
		log.Error().Err(err).Msg("history_prune_failed")
		return
	}
	log.Info().Int64("removed", n).Int("keep", r.keep).Msg("history_pruned")
}

// Start begins running scheduled jobs.
func (r *Retention) Start() {
	r.cron.Start()
}

// Stop halts the scheduler and waits for a running prune to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// Entries returns the number of scheduled jobs.
func (r *Retention) Entries() int {
	return len(r.cron.Entries())
}
