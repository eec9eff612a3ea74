package notification

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"

	errors "github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/core/common/validation"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

var ErrCoordinatorNotFound = errors.NewNotFoundError("Coordinator not found", errors.ErrCodeCoordinatorMissing)

type CoordinatorRepository interface {
	CoordinatorSource
	List(ctx context.Context, includeInactive bool) ([]*Coordinator, error)
	Create(ctx context.Context, c *Coordinator) error
	Deactivate(ctx context.Context, id int64) error
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type CoordinatorService struct {
	repo   CoordinatorRepository
	audit  AuditRecorder
	clock  clock.Clock
	logger *slog.Logger
}

func NewCoordinatorService(repo CoordinatorRepository, recorder AuditRecorder, clk clock.Clock, logger *slog.Logger) *CoordinatorService {
	return &CoordinatorService{
		repo:   repo,
		audit:  recorder,
		clock:  clk,
		logger: logger,
	}
}

// Create registers a coordinator. Provinces must all belong to the region;
// an empty set means the coordinator only receives region fallbacks.
func (s *CoordinatorService) Create(ctx context.Context, actor *auth.Principal, dto CreateCoordinatorDTO) (*Coordinator, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}

	verrs := validation.Collect(&dto)
	if dto.Region != "" && !dto.Region.Valid() {
		verrs.Add("region", "region is not recognised", errors.ErrCodeInvalidRegion)
	}
	provinces := make([]string, 0, len(dto.Provinces))
	seen := make(map[string]bool)
	for _, p := range dto.Provinces {
		p = strings.TrimSpace(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		if dto.Region.Valid() && !dto.Region.HasProvince(p) {
			verrs.Add("provinces", p+" is not in region "+string(dto.Region), errors.ErrCodeProvinceMismatch)
		}
		provinces = append(provinces, p)
	}
	if err := verrs.AsError(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	c := &Coordinator{
		IdentityID: dto.IdentityID,
		Name:       dto.Name,
		Email:      strings.ToLower(strings.TrimSpace(dto.Email)),
		Region:     dto.Region,
		Provinces:  provinces,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.IsDuplicateError(err) {
			return nil, errors.NewConflictError("a coordinator with this email already exists", errors.ErrCodeDuplicate)
		}
		s.logger.Error("failed to create coordinator", "error", err)
		return nil, errors.NewInternalError("failed to create coordinator", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: "coordinators",
		SubjectID:    strconv.FormatInt(c.ID, 10),
		Action:       audit.ActionCreate,
		After:        audit.Snapshot(c),
	})
	s.logger.Info("coordinator created", "coordinator_id", c.ID, "region", c.Region, "provinces", len(c.Provinces))
	return c, nil
}

func (s *CoordinatorService) Deactivate(ctx context.Context, actor *auth.Principal, id int64) error {
	if err := auth.RequirePrincipal(actor, auth.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if stderrors.Is(err, ErrCoordinatorNotFound) {
			return err
		}
		s.logger.Error("failed to deactivate coordinator", "error", err, "coordinator_id", id)
		return errors.NewInternalError("failed to deactivate coordinator", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: "coordinators",
		SubjectID:    strconv.FormatInt(id, 10),
		Action:       audit.ActionUpdate,
		Before:       map[string]any{"is_active": true},
		After:        map[string]any{"is_active": false},
	})
	return nil
}

func (s *CoordinatorService) List(ctx context.Context, actor *auth.Principal, includeInactive bool) ([]*Coordinator, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleManager); err != nil {
		return nil, err
	}
	coordinators, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		s.logger.Error("failed to list coordinators", "error", err)
		return nil, errors.NewInternalError("failed to list coordinators", err)
	}
	return coordinators, nil
}
