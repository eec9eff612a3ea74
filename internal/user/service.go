package user

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	errors "github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/core/common/validation"
)

type Repository interface {
	auth.IdentityRepository
	UpdateRole(ctx context.Context, id int64, role auth.Role) error
	UpdateStatus(ctx context.Context, id int64, status auth.IdentityStatus) error
	List(ctx context.Context, f ListFilter) ([]*auth.Identity, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type Service struct {
	repo       Repository
	audit      AuditRecorder
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo Repository, recorder AuditRecorder, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		audit:      recorder,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) Me(ctx context.Context, actor *auth.Principal) (*auth.Identity, error) {
	if actor == nil {
		return nil, errors.ErrAuthenticationRequired
	}
	return s.GetByID(ctx, actor.ID)
}

func (s *Service) GetByID(ctx context.Context, id int64) (*auth.Identity, error) {
	identity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrUserNotFound
		}
		s.logger.Error("failed to load identity", "identity_id", id, "error", err)
		return nil, errors.NewInternalError("failed to load user", err)
	}
	return identity, nil
}

// Provision creates an identity ahead of its first directory login.
func (s *Service) Provision(ctx context.Context, actor *auth.Principal, dto ProvisionDTO) (*auth.Identity, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}

	verrs := validation.Collect(&dto)
	if dto.Role != "" && !dto.Role.Valid() {
		verrs.Add("role", "role is not recognised", errors.ErrCodeInvalidRole)
	}
	if err := verrs.AsError(); err != nil {
		return nil, err
	}

	identity := &auth.Identity{
		Username:     auth.NormalizeUsername(dto.Username),
		DisplayName:  dto.DisplayName,
		Email:        dto.Email,
		Role:         dto.Role,
		DepartmentID: dto.DepartmentID,
		Status:       auth.IdentityActive,
	}

	if dto.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
		if err != nil {
			return nil, errors.NewInternalError("failed to hash password", err)
		}
		identity.PasswordHash = string(hash)
	}

	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.IsDuplicateError(err) {
			return nil, errors.NewConflictError("username is already taken", errors.ErrCodeDuplicate)
		}
		s.logger.Error("failed to provision identity", "username", identity.Username, "error", err)
		return nil, errors.NewInternalError("failed to create user", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: "identities",
		SubjectID:    strconv.FormatInt(identity.ID, 10),
		Action:       audit.ActionCreate,
		After:        audit.Snapshot(identity),
	})

	s.logger.Info("identity provisioned", "identity_id", identity.ID, "role", identity.Role, "actor_id", actor.ID)
	return identity, nil
}

// ChangeRole is the only way a role changes after provisioning.
func (s *Service) ChangeRole(ctx context.Context, actor *auth.Principal, id int64, dto ChangeRoleDTO) (*auth.Identity, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if !dto.Role.Valid() {
		return nil, errors.NewValidationFieldError("role", "role is not recognised", errors.ErrCodeInvalidRole)
	}
	if id == actor.ID {
		return nil, errors.NewValidationFieldError("id", "administrators cannot change their own role", errors.ErrCodeInvalidValue)
	}

	identity, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity.Role == dto.Role {
		return identity, nil
	}

	previous := identity.Role
	if err := s.repo.UpdateRole(ctx, id, dto.Role); err != nil {
		s.logger.Error("failed to change role", "identity_id", id, "error", err)
		return nil, errors.NewInternalError("failed to change role", err)
	}
	identity.Role = dto.Role

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: "identities",
		SubjectID:    strconv.FormatInt(id, 10),
		Action:       audit.ActionRoleChange,
		Before:       map[string]any{"role": string(previous)},
		After:        map[string]any{"role": string(dto.Role)},
	})

	s.logger.Info("role changed", "identity_id", id, "from", previous, "to", dto.Role, "actor_id", actor.ID)
	return identity, nil
}

// SetStatus enables or disables an identity. Identities are never deleted.
func (s *Service) SetStatus(ctx context.Context, actor *auth.Principal, id int64, dto SetStatusDTO) (*auth.Identity, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validation.Struct(&dto); err != nil {
		return nil, err
	}

	identity, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if identity.Status == dto.Status {
		return identity, nil
	}

	previous := identity.Status
	if err := s.repo.UpdateStatus(ctx, id, dto.Status); err != nil {
		s.logger.Error("failed to update identity status", "identity_id", id, "error", err)
		return nil, errors.NewInternalError("failed to update user status", err)
	}
	identity.Status = dto.Status

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		SubjectTable: "identities",
		SubjectID:    strconv.FormatInt(id, 10),
		Action:       audit.ActionUpdate,
		Before:       map[string]any{"status": string(previous)},
		After:        map[string]any{"status": string(dto.Status)},
	})
	return identity, nil
}

func (s *Service) List(ctx context.Context, actor *auth.Principal, f ListFilter) ([]*auth.Identity, error) {
	if err := auth.RequirePrincipal(actor, auth.RoleManager); err != nil {
		return nil, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, errors.NewValidationFieldError("role", "role is not recognised", errors.ErrCodeInvalidRole)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}

	users, err := s.repo.List(ctx, f)
	if err != nil {
		s.logger.Error("failed to list identities", "error", err)
		return nil, errors.NewInternalError("failed to list users", err)
	}
	return users, nil
}
