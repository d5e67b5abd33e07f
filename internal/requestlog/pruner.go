package requestlog

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/juniorsir/stream-dl/internal/log"
)

// Pruner deletes request logs older than the retention window on a cron
// schedule.
type Pruner struct {
	repo      *Repo
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
	logger    zerolog.Logger
}

// NewPruner schedules retention pruning. A non-positive retention disables
// pruning; Start and Stop are then no-ops.
func NewPruner(repo *Repo, retention time.Duration, schedule string) (*Pruner, error) {
	p := &Pruner{
		repo:      repo,
		retention: retention,
		now:       time.Now,
		cron:      cron.New(),
		logger:    log.WithComponent("requestlog"),
	}
	if retention <= 0 {
		return p, nil
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		if _, err := p.PruneNow(); err != nil {
			p.logger.Error().Err(err).Msg("scheduled prune failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("requestlog: invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start starts the scheduler.
func (p *Pruner) Start() { p.cron.Start() }

// Stop stops the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

// PruneNow deletes entries older than now minus retention.
func (p *Pruner) PruneNow() (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.Prune(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned request logs")
	}
	return n, nil
}
