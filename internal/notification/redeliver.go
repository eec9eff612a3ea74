package notification

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type RedelivererConfig struct {
	MaxAttempts int
	Interval    time.Duration
	// Rate is the number of sends per second.
	Rate      float64
	BatchSize int
	// StaleAfter is how long a record may stay pending before it is taken as
	// failed. Defaults to the send timeout plus staleMargin.
	StaleAfter time.Duration
}

const (
	staleMargin = time.Minute
	staleDetail = "abandoned while pending: delivery outcome unknown"
)

// Redeliverer periodically retries failed notifications. Each retry is a new
// record; the failed one is left as it is. Records left pending by a crashed
// or unresolved send are failed first so they get retried too.
type Redeliverer struct {
	dispatcher *Dispatcher
	records    RecordRepository
	limiter    *rate.Limiter
	config     RedelivererConfig
	logger     *slog.Logger
}

func NewRedeliverer(dispatcher *Dispatcher, records RecordRepository, config RedelivererConfig, logger *slog.Logger) *Redeliverer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Rate <= 0 {
		config.Rate = 2
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = dispatcher.config.SendTimeout + staleMargin
	}
	return &Redeliverer{
		dispatcher: dispatcher,
		records:    records,
		limiter:    rate.NewLimiter(rate.Limit(config.Rate), 1),
		config:     config,
		logger:     logger,
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Redeliverer) Run(ctx context.Context) error {
	r.logger.Info("notification redelivery started",
		"interval", r.config.Interval,
		"max_attempts", r.config.MaxAttempts,
		"rate", r.config.Rate)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("notification redelivery pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("notification redelivery stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce retries one batch and returns how many were delivered.
func (r *Redeliverer) RunOnce(ctx context.Context) (int, error) {
	now := r.dispatcher.clock.Now()
	stale, err := r.records.FailStale(ctx, now.Add(-r.config.StaleAfter), staleDetail, now)
	if err != nil {
		return 0, err
	}
	if stale > 0 {
		r.logger.Warn("failed notifications stuck in pending", "count", stale, "stale_after", r.config.StaleAfter)
	}

	failed, err := r.records.ListRedeliverable(ctx, r.config.MaxAttempts, r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, prev := range failed {
		if err := r.limiter.Wait(ctx); err != nil {
			return sent, err
		}
		rec, ok := r.dispatcher.Redeliver(ctx, prev)
		if ok && rec.Status == StatusSent {
			sent++
		}
	}

	if len(failed) > 0 {
		r.logger.Info("notification redelivery pass complete", "retried", len(failed), "sent", sent)
	}
	return sent, nil
}
