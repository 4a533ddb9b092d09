package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// MessagePruner deletes message events older than a cutoff
type MessagePruner interface {
	PruneMessagesBefore(ctx context.Context, before time.Time) (int64, error)
}

// Retention periodically removes message events that no quota window can
// reach anymore
type Retention struct {
	cron      *cron.Cron
	store     MessagePruner
	retention time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewRetention creates the job; it does nothing until Start
func NewRetention(store MessagePruner, retention time.Duration, log *slog.Logger) *Retention {
	return &Retention{
		cron:      cron.New(),
		store:     store,
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// Start schedules the prune run with a standard cron spec or descriptor
func (r *Retention) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, func() { r.Run(context.Background()) }); err != nil {
		return err
	}

	r.log.Info("message retention started", "schedule", spec, "retention", r.retention)
	r.cron.Start()
	return nil
}

// Stop waits for a running prune to finish
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// Run prunes once
func (r *Retention) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := r.now().Add(-r.retention)
	n, err := r.store.PruneMessagesBefore(ctx, cutoff)
	if err != nil {
		r.log.Error("prune messages", "error", err)
		return
	}

	r.log.Info("pruned message events", "deleted", n, "cutoff", cutoff)
}
