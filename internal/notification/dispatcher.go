package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal/metrics"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	// Resolve moves a pending record to sent or failed. Resolved records are
	// never touched again.
	Resolve(ctx context.Context, id int64, status Status, detail string, at time.Time) error
	ListRedeliverable(ctx context.Context, maxAttempts, limit int) ([]*Record, error)
	// FailStale marks records still pending since before createdBefore as
	// failed and returns how many it changed.
	FailStale(ctx context.Context, createdBefore time.Time, detail string, at time.Time) (int64, error)
	ListByCall(ctx context.Context, callID string) ([]*Record, error)
	Stats(ctx context.Context) ([]StatCount, error)
}

type DispatcherConfig struct {
	DeliveryMode string
	SendTimeout  time.Duration
}

// Dispatcher sends one message per recipient and keeps a record of each
// attempt. Delivery failures are recorded, never returned.
type Dispatcher struct {
	records  RecordRepository
	mailer   Mailer
	renderer *Renderer
	config   DispatcherConfig
	clock    clock.Clock
	logger   *slog.Logger
}

func NewDispatcher(records RecordRepository, mailer Mailer, renderer *Renderer, config DispatcherConfig, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		records:  records,
		mailer:   mailer,
		renderer: renderer,
		config:   config,
		clock:    clk,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, c CallSummary, recipients []Recipient, t Type) []*Record {
	subject := d.renderer.Subject(c, t)
	body := d.renderer.Body(c, t)

	records := make([]*Record, 0, len(recipients))
	for _, recipient := range recipients {
		rec := &Record{
			CallID:        c.ID,
			CallNumber:    c.CallNumber,
			Type:          t,
			RecipientType: recipient.Type,
			Recipient:     recipient.Address,
			Subject:       subject,
			Body:          body,
			Attempt:       1,
		}
		if d.deliver(ctx, rec) {
			records = append(records, rec)
		}
	}
	return records
}

// Redeliver retries a failed record as a new attempt linked to it.
func (d *Dispatcher) Redeliver(ctx context.Context, prev *Record) (*Record, bool) {
	previousID := prev.ID
	rec := &Record{
		CallID:        prev.CallID,
		CallNumber:    prev.CallNumber,
		Type:          prev.Type,
		RecipientType: prev.RecipientType,
		Recipient:     prev.Recipient,
		Subject:       prev.Subject,
		Body:          prev.Body,
		Attempt:       prev.Attempt + 1,
		PreviousID:    &previousID,
	}
	if !d.deliver(ctx, rec) {
		return nil, false
	}
	return rec, true
}

// deliver inserts rec as pending, sends it and resolves it. It returns false
// only when the pending record could not be written.
func (d *Dispatcher) deliver(ctx context.Context, rec *Record) bool {
	rec.Status = StatusPending
	rec.DeliveryMode = d.config.DeliveryMode
	rec.CreatedAt = d.clock.Now()

	if err := d.records.Create(ctx, rec); err != nil {
		d.logger.Error("failed to record notification",
			"error", err,
			"call_number", rec.CallNumber,
			"recipient", rec.Recipient,
			"type", rec.Type)
		return false
	}

	sendErr := d.send(ctx, rec)

	status, detail := StatusSent, ""
	if sendErr != nil {
		status, detail = StatusFailed, sendErr.Error()
		d.logger.Warn("notification delivery failed",
			"error", sendErr,
			"record_id", rec.ID,
			"call_number", rec.CallNumber,
			"recipient", rec.Recipient,
			"attempt", rec.Attempt)
	}

	resolvedAt := d.clock.Now()
	if err := d.records.Resolve(ctx, rec.ID, status, detail, resolvedAt); err != nil {
		d.logger.Error("failed to resolve notification record", "error", err, "record_id", rec.ID)
	} else {
		rec.Status = status
		rec.ErrorDetail = detail
		rec.ResolvedAt = &resolvedAt
	}

	metrics.RecordNotification(string(rec.Type), string(status), d.config.DeliveryMode)
	return true
}

func (d *Dispatcher) send(ctx context.Context, rec *Record) error {
	htmlBody, err := d.renderer.HTML(rec.Body)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	return d.mailer.Send(sendCtx, Message{
		To:        rec.Recipient,
		Subject:   rec.Subject,
		PlainBody: rec.Body,
		HTMLBody:  htmlBody,
	})
}

func (d *Dispatcher) Stats(ctx context.Context) (*Stats, error) {
	counts, err := d.records.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		DeliveryMode: d.config.DeliveryMode,
		ByStatus:     make(map[Status]int64),
		ByType:       make(map[Type]int64),
		Breakdown:    counts,
	}
	for _, c := range counts {
		stats.Total += c.Count
		stats.ByStatus[c.Status] += c.Count
		stats.ByType[c.Type] += c.Count
	}
	return stats, nil
}
