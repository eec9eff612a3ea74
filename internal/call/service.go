package call

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/core/common/validation"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
	"github.com/frahmantamala/facilities-maintenance/internal/metrics"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

const subjectTable = "maintenance_calls"

// Repository is the persistence side of the call lifecycle. Every mutation
// runs in its own transaction.
type Repository interface {
	// Create allocates the call number and inserts the call. It returns
	// ErrCallNumberConflict when the number could not be claimed.
	Create(ctx context.Context, c *MaintenanceCall) error
	GetByID(ctx context.Context, id string) (*MaintenanceCall, error)
	List(ctx context.Context, f ListFilter) ([]*MaintenanceCall, error)
	// Assign sets the assignee. first is true when this was the first
	// assignment, which also stamps assigned_date and the response time.
	Assign(ctx context.Context, id string, assigneeID int64, at time.Time, responseMinutes int) (first bool, err error)
	// UpdateStatus moves the call from one status to another. ok is false if
	// the stored status was no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (ok bool, err error)
	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, callID string, includeInternal bool) ([]*Comment, error)
	ListAttachments(ctx context.Context, callID string) ([]*Attachment, error)
	Purge(ctx context.Context, id string) error
}

type CallTypeValidator interface {
	IsValid(ctx context.Context, name string) bool
}

type IdentityLookup interface {
	GetByID(ctx context.Context, id int64) (*auth.Identity, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type Service struct {
	repo       Repository
	callTypes  CallTypeValidator
	identities IdentityLookup
	publisher  events.Publisher
	audit      AuditRecorder
	clock      clock.Clock
	logger     *slog.Logger
}

func NewService(
	repo Repository,
	callTypes CallTypeValidator,
	identities IdentityLookup,
	publisher events.Publisher,
	recorder AuditRecorder,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		callTypes:  callTypes,
		identities: identities,
		publisher:  publisher,
		audit:      recorder,
		clock:      clk,
		logger:     logger,
	}
}

// Create logs a new call in status open.
func (s *Service) Create(ctx context.Context, actor *auth.Principal, dto CreateCallDTO) (*MaintenanceCall, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleUser); err != nil {
		return nil, err
	}
	if err := s.validateCreate(ctx, &dto); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	c := &MaintenanceCall{
		ID:              uuid.NewString(),
		Title:           dto.Title,
		Description:     dto.Description,
		CallType:        dto.CallType,
		Building:        dto.Building,
		Province:        dto.Province,
		Region:          dto.Region,
		Priority:        dto.Priority,
		Status:          StatusOpen,
		ReporterID:      actor.ID,
		ReporterName:    dto.ReporterName,
		ReporterContact: dto.ReporterContact,
		ReportedDate:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.repo.Create(ctx, c)
		if !stderrors.Is(err, ErrCallNumberConflict) {
			break
		}
		metrics.RecordCallConflict("call_number")
		s.logger.Warn("call number conflict", "attempt", attempt+1, "call_id", c.ID)
	}
	if err != nil {
		if stderrors.Is(err, ErrCallNumberConflict) {
			return nil, errors.NewConflictError("could not allocate a call number, please try again", errors.ErrCodeConcurrentUpdate)
		}
		s.logger.Error("failed to create call", "error", err, "reporter_id", actor.ID)
		return nil, errors.NewInternalError("failed to create maintenance call", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: subjectTable,
		SubjectID:    c.ID,
		Action:       audit.ActionCreate,
		After:        audit.Snapshot(c),
	})
	metrics.RecordCallCreated(string(c.Region), string(c.Priority))
	s.publish(ctx, events.NewCallCreatedEvent(c.Snapshot(), actor.ID))

	s.logger.Info("maintenance call created",
		"call_id", c.ID,
		"call_number", c.CallNumber,
		"region", c.Region,
		"priority", c.Priority,
		"reporter_id", actor.ID)

	return c, nil
}

func (s *Service) validateCreate(ctx context.Context, dto *CreateCallDTO) error {
	verrs := validation.Collect(dto)
	if dto.Region != "" && !dto.Region.Valid() {
		verrs.Add("region", "region is not recognised", errors.ErrCodeInvalidRegion)
	}
	if dto.Priority != "" && !dto.Priority.Valid() {
		verrs.Add("priority", "priority is not recognised", errors.ErrCodeInvalidPriority)
	}
	if strings.TrimSpace(dto.Province) != "" {
		switch {
		case !ValidProvince(dto.Province):
			verrs.Add("province", "province is not recognised", errors.ErrCodeInvalidProvince)
		case dto.Region.Valid() && !dto.Region.HasProvince(dto.Province):
			verrs.Add("province", "province does not belong to region "+string(dto.Region), errors.ErrCodeProvinceMismatch)
		}
	}
	if strings.TrimSpace(dto.CallType) != "" && !s.callTypes.IsValid(ctx, dto.CallType) {
		verrs.Add("call_type", "call type is not an active catalog entry", errors.ErrCodeInvalidCallType)
	}
	return verrs.AsError()
}

// Get returns a call the actor is allowed to see. Hidden calls are reported as
// not found.
func (s *Service) Get(ctx context.Context, actor *auth.Principal, id string) (*MaintenanceCall, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleUser); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeeAll(actor) && c.ReporterID != actor.ID {
		return nil, errors.ErrCallNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, actor *auth.Principal, f ListFilter) ([]*MaintenanceCall, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleUser); err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, errors.NewValidationFieldError("status", "status is not recognised", errors.ErrCodeInvalidValue)
	}
	if f.Region != "" && !f.Region.Valid() {
		return nil, errors.NewValidationFieldError("region", "region is not recognised", errors.ErrCodeInvalidRegion)
	}
	if !canSeeAll(actor) {
		f.ReporterID = &actor.ID
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	calls, err := s.repo.List(ctx, f)
	if err != nil {
		s.logger.Error("failed to list calls", "error", err)
		return nil, errors.NewInternalError("failed to list maintenance calls", err)
	}
	return calls, nil
}

// Assign sets or changes the assignee. Self-assignment needs technician,
// assigning someone else needs manager.
func (s *Service) Assign(ctx context.Context, actor *auth.Principal, id string, assigneeID int64) (*MaintenanceCall, error) {
	if actor == nil {
		return nil, errors.ErrAuthenticationRequired
	}
	required := auth.RoleManager
	if assigneeID == actor.ID {
		required = auth.RoleTechnician
	}
	if err := auth.RequirePrincipal(actor, required); err != nil {
		return nil, err
	}

	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, errors.ErrCallTerminal
	}
	if err := s.checkAssignee(ctx, assigneeID); err != nil {
		return nil, err
	}

	previous := c.AssignedTo
	now := s.clock.Now()
	minutes := int(now.Sub(c.ReportedDate) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}

	first, err := s.repo.Assign(ctx, id, assigneeID, now, minutes)
	if err != nil {
		if stderrors.Is(err, errors.ErrCallTerminal) || stderrors.Is(err, errors.ErrCallNotFound) {
			return nil, err
		}
		s.logger.Error("failed to assign call", "error", err, "call_id", id, "assignee_id", assigneeID)
		return nil, errors.NewInternalError("failed to assign maintenance call", err)
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: subjectTable,
		SubjectID:    id,
		Action:       audit.ActionUpdate,
		Before:       map[string]any{"assigned_to": previous, "status": string(c.Status)},
		After:        map[string]any{"assigned_to": updated.AssignedTo, "status": string(updated.Status)},
	})
	if c.Status != updated.Status {
		metrics.RecordCallStatusChange(string(c.Status), string(updated.Status))
	}
	s.publish(ctx, events.NewCallAssignedEvent(updated.Snapshot(), actor.ID))

	s.logger.Info("maintenance call assigned",
		"call_id", id,
		"assignee_id", assigneeID,
		"first_assignment", first,
		"actor_id", actor.ID)

	return updated, nil
}

func (s *Service) checkAssignee(ctx context.Context, assigneeID int64) error {
	assignee, err := s.identities.GetByID(ctx, assigneeID)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return errors.ErrInvalidAssignee
		}
		s.logger.Error("failed to load assignee", "error", err, "assignee_id", assigneeID)
		return errors.NewInternalError("failed to load assignee", err)
	}
	if !assignee.IsActive() || !assignee.Role.Includes(auth.RoleTechnician) {
		return errors.ErrInvalidAssignee
	}
	return nil
}

// TransitionStatus moves a call through the status table. Technicians may only
// move calls assigned to them.
func (s *Service) TransitionStatus(ctx context.Context, actor *auth.Principal, id string, next Status) (*MaintenanceCall, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleTechnician); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, errors.NewValidationFieldError("status", "status is not recognised", errors.ErrCodeInvalidValue)
	}

	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !actor.Has(auth.RoleManager) && !c.IsAssignedTo(actor.ID) {
			s.logger.Warn("status change on a call assigned to someone else",
				"call_id", id, "actor_id", actor.ID)
			return nil, errors.ErrInsufficientRole
		}
		if c.Status == next {
			return c, nil
		}
		if !c.Status.CanTransitionTo(next) {
			if c.Status.IsTerminal() {
				return nil, errors.ErrCallTerminal
			}
			return nil, errors.ErrInvalidTransition.WithDetails(map[string]string{
				"from": string(c.Status),
				"to":   string(next),
			})
		}
		if (next == StatusAssigned || next == StatusInProgress) && c.AssignedTo == nil {
			return nil, errors.NewValidationFieldError("status", "call has no assignee", errors.ErrCodeInvalidTransition)
		}

		ok, err := s.repo.UpdateStatus(ctx, id, c.Status, next, s.clock.Now())
		if err != nil {
			s.logger.Error("failed to update call status", "error", err, "call_id", id)
			return nil, errors.NewInternalError("failed to update maintenance call", err)
		}
		if !ok {
			metrics.RecordCallConflict("status")
			s.logger.Warn("call status changed concurrently", "call_id", id, "observed", c.Status)
			continue
		}

		updated, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		s.afterTransition(ctx, actor, c.Status, updated)
		return updated, nil
	}

	return nil, errors.ErrConcurrentUpdate
}

func (s *Service) afterTransition(ctx context.Context, actor *auth.Principal, from Status, c *MaintenanceCall) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: subjectTable,
		SubjectID:    c.ID,
		Action:       audit.ActionUpdate,
		Before:       map[string]any{"status": string(from)},
		After:        map[string]any{"status": string(c.Status), "completed_date": c.CompletedDate},
	})
	metrics.RecordCallStatusChange(string(from), string(c.Status))

	if c.Status.IsCompletion() {
		s.publish(ctx, events.NewCallCompletedEvent(c.Snapshot(), string(from), string(c.Status), actor.ID))
	} else {
		s.publish(ctx, events.NewCallStatusChangedEvent(c.Snapshot(), string(from), string(c.Status), actor.ID))
	}

	s.logger.Info("maintenance call status changed",
		"call_id", c.ID,
		"from", from,
		"to", c.Status,
		"actor_id", actor.ID)
}

// AddComment appends a comment. Internal comments need technician.
func (s *Service) AddComment(ctx context.Context, actor *auth.Principal, callID string, dto CommentDTO) (*Comment, error) {
	if _, err := s.Get(ctx, actor, callID); err != nil {
		return nil, err
	}
	if err := validation.Struct(&dto); err != nil {
		return nil, err
	}
	if dto.IsInternal && !actor.Has(auth.RoleTechnician) {
		return nil, errors.ErrInsufficientRole
	}

	comment := &Comment{
		CallID:     callID,
		AuthorID:   actor.ID,
		Body:       dto.Body,
		IsInternal: dto.IsInternal,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		s.logger.Error("failed to add comment", "error", err, "call_id", callID)
		return nil, errors.NewInternalError("failed to add comment", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: "call_comments",
		SubjectID:    strconv.FormatInt(comment.ID, 10),
		Action:       audit.ActionCreate,
		After:        map[string]any{"call_id": callID, "is_internal": comment.IsInternal},
	})
	return comment, nil
}

// GetComments hides internal comments from actors below technician.
func (s *Service) GetComments(ctx context.Context, actor *auth.Principal, callID string) ([]*Comment, error) {
	if _, err := s.Get(ctx, actor, callID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, callID, actor.Has(auth.RoleTechnician))
	if err != nil {
		s.logger.Error("failed to list comments", "error", err, "call_id", callID)
		return nil, errors.NewInternalError("failed to list comments", err)
	}
	return comments, nil
}

func (s *Service) ListAttachments(ctx context.Context, actor *auth.Principal, callID string) ([]*Attachment, error) {
	if _, err := s.Get(ctx, actor, callID); err != nil {
		return nil, err
	}
	attachments, err := s.repo.ListAttachments(ctx, callID)
	if err != nil {
		s.logger.Error("failed to list attachments", "error", err, "call_id", callID)
		return nil, errors.NewInternalError("failed to list attachments", err)
	}
	return attachments, nil
}

// Purge removes a call with its comments and attachments.
func (s *Service) Purge(ctx context.Context, actor *auth.Principal, id string) error {
	if err := auth.RequirePrincipal(actor, auth.RoleAdmin); err != nil {
		return err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		if stderrors.Is(err, errors.ErrCallNotFound) {
			return err
		}
		s.logger.Error("failed to purge call", "error", err, "call_id", id)
		return errors.NewInternalError("failed to delete maintenance call", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: subjectTable,
		SubjectID:    id,
		Action:       audit.ActionDelete,
		Before:       audit.Snapshot(c),
	})
	s.logger.Info("maintenance call purged", "call_id", id, "call_number", c.CallNumber, "actor_id", actor.ID)
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*MaintenanceCall, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrCallNotFound
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrCallNotFound) {
			return nil, errors.ErrCallNotFound
		}
		s.logger.Error("failed to load call", "error", err, "call_id", id)
		return nil, errors.NewInternalError("failed to load maintenance call", err)
	}
	return c, nil
}

// publish runs after the mutation has committed. Failures never reach the caller.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish call event", "event_type", e.EventType(), "error", err)
	}
}

func canSeeAll(actor *auth.Principal) bool {
	return actor.Has(auth.RoleTechnician) || actor.Has(auth.RoleCoordinator)
}
