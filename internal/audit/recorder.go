package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/metrics"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
	"github.com/frahmantamala/facilities-maintenance/pkg/ids"
)

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// Recorder writes the audit trail. Persistence failures never reach the
// caller; they go to the operational logger and the
// audit_write_failures_total counter instead.
type Recorder struct {
	repo    Repository
	logger  *slog.Logger
	timeout time.Duration
	clock   clock.Clock
}

func NewRecorder(repo Repository, logger *slog.Logger, timeout time.Duration, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Recorder{
		repo:    repo,
		logger:  logger,
		timeout: timeout,
		clock:   clk,
	}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now().UTC()
	}

	origin := internal.OriginFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = origin.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = origin.UserAgent
	}
	if e.RequestID == "" {
		e.RequestID = origin.RequestID
	}

	// the business operation may already be finishing; do not inherit its cancellation
	writeCtx, cancel := internal.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.repo.Append(writeCtx, &e); err != nil {
		metrics.RecordAuditFailure()
		r.logger.Error("audit entry could not be persisted",
			"audit_sink_failure", true,
			"error", err,
			"audit_id", e.ID,
			"action", e.Action,
			"subject_table", e.SubjectTable,
			"subject_id", e.SubjectID,
			"actor_id", e.ActorID,
			"before", e.Before,
			"after", e.After,
			"ip_address", e.IPAddress,
			"request_id", e.RequestID)
		return
	}

	r.logger.Debug("audit entry recorded", "audit_id", e.ID, "action", e.Action, "subject_table", e.SubjectTable)
}

func (r *Recorder) List(ctx context.Context, f Filter) ([]*Entry, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	entries, err := r.repo.List(ctx, f)
	if err != nil {
		r.logger.Error("failed to list audit entries", "error", err)
		return nil, internal.NewInternalError("failed to list audit entries", err)
	}
	return entries, nil
}
