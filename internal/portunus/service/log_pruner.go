package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultPruneInterval = 6 * time.Hour

// LogPruneStore is the slice of store.AccessLogStore the pruner needs.
type LogPruneStore interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PrunerConfig struct {
	// RetentionDays of audit history to keep; 0 keeps everything.
	RetentionDays int
	// IntervalHours between passes; defaults to 6.
	IntervalHours int
	// Now is overridable for tests.
	Now func() time.Time
}

// LogPruner enforces the access log retention window.
type LogPruner struct {
	store     LogPruneStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewLogPruner(s LogPruneStore, cfg PrunerConfig, logger zerolog.Logger) *LogPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LogPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		now:       now,
		log:       logger.With().Str("component", "log_pruner").Logger(),
	}
}

func (p *LogPruner) Enabled() bool { return p.retention > 0 }

// Cutoff is the oldest creation time that survives a pass run now.
func (p *LogPruner) Cutoff() time.Time { return p.now().Add(-p.retention) }

// PruneNow runs one pass and reports how many audit rows were removed.
func (p *LogPruner) PruneNow(ctx context.Context) (int64, error) {
	if !p.Enabled() {
		return 0, nil
	}
	cutoff := p.Cutoff()
	n, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		pruneRunsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	pruneRunsTotal.WithLabelValues("ok").Inc()
	prunedRowsTotal.Add(float64(n))
	if n > 0 {
		p.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("access logs pruned")
	}
	return n, nil
}

// Run prunes immediately, then once per interval until ctx ends. A
// disabled pruner returns at once. Pass errors are logged, not returned.
func (p *LogPruner) Run(ctx context.Context) error {
	if !p.Enabled() {
		p.log.Info().Msg("access log retention disabled")
		return nil
	}
	p.log.Info().
		Dur("retention", p.retention).
		Dur("interval", p.interval).
		Msg("access log pruner running")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.PruneNow(ctx); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("prune access logs")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
