package auth

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"time"

	errors "github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/core/common/validation"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO, fp Fingerprint, priorToken string) (*LoginResult, error)
	Logout(ctx context.Context, token string, fp Fingerprint) error
	Authenticate(ctx context.Context, token string, fp Fingerprint) (*Session, Result, error)
	Require(res Result, required Role) error
	VerifyCSRF(presented, sessionToken string) error
}

type Service struct {
	directory        IdentityProvider
	identities       IdentityRepository
	store            *SessionStore
	guard            *Guard
	csrf             *CSRFSigner
	audit            AuditRecorder
	clock            clock.Clock
	directoryTimeout time.Duration
	logger           *slog.Logger
}

func NewService(directory IdentityProvider, identities IdentityRepository, store *SessionStore, csrf *CSRFSigner, recorder AuditRecorder, clk clock.Clock, directoryTimeout time.Duration, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		directory:        directory,
		identities:       identities,
		store:            store,
		guard:            NewGuard(store, identities, logger),
		csrf:             csrf,
		audit:            recorder,
		clock:            clk,
		directoryTimeout: directoryTimeout,
		logger:           logger,
	}
}

// Login authenticates against the directory, provisions the identity on
// first sight and opens a session. Every failure the caller can trigger
// yields the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, dto LoginDTO, fp Fingerprint, priorToken string) (*LoginResult, error) {
	if err := validation.Struct(&dto); err != nil {
		return nil, err
	}
	username := NormalizeUsername(dto.Username)

	dirCtx, cancel := context.WithTimeout(ctx, s.directoryTimeout)
	verified, err := s.directory.Authenticate(dirCtx, username, dto.Password)
	cancel()
	if err != nil {
		switch {
		case stderrors.Is(err, ErrBadCredentials), stderrors.Is(err, ErrDirectoryNotFound):
			s.logger.Info("login rejected by directory", "username", username)
			s.loginFailed(ctx, username, "bad_credentials", fp)
		default:
			s.logger.Error("directory unavailable during login", "username", username, "error", err)
			s.loginFailed(ctx, username, "directory_unreachable", fp)
		}
		return nil, errors.ErrInvalidCredentials
	}

	identity, err := s.provision(ctx, username, verified)
	if err != nil {
		return nil, err
	}

	if !identity.IsActive() {
		s.logger.Warn("login attempt for inactive identity", "identity_id", identity.ID)
		s.loginFailed(ctx, username, "inactive", fp)
		return nil, errors.ErrUserInactive
	}

	now := s.clock.Now()
	if err := s.identities.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		// login still succeeds; last-login is informational
		s.logger.Warn("failed to stamp last login", "identity_id", identity.ID, "error", err)
	} else {
		identity.LastLoginAt = &now
	}

	sess, err := s.store.Create(ctx, identity, fp, priorToken)
	if err != nil {
		s.logger.Error("failed to create session", "identity_id", identity.ID, "error", err)
		return nil, errors.NewInternalError("failed to create session", err)
	}

	return &LoginResult{Session: sess, Identity: identity}, nil
}

func (s *Service) provision(ctx context.Context, username string, verified *VerifiedIdentity) (*Identity, error) {
	identity, err := s.identities.GetByUsername(ctx, username)
	if err == nil {
		return identity, nil
	}
	if !stderrors.Is(err, errors.ErrUserNotFound) {
		s.logger.Error("failed to load identity", "username", username, "error", err)
		return nil, errors.NewInternalError("failed to load identity", err)
	}

	identity = &Identity{
		Username:    username,
		DisplayName: verified.DisplayName,
		Email:       verified.Email,
		Role:        RoleFromGroups(verified.Groups),
		Status:      IdentityActive,
	}
	if identity.DisplayName == "" {
		identity.DisplayName = username
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.IsDuplicateError(err) {
			// another login provisioned it first
			return s.identities.GetByUsername(ctx, username)
		}
		s.logger.Error("failed to provision identity", "username", username, "error", err)
		return nil, errors.NewInternalError("failed to provision identity", err)
	}

	s.audit.Record(ctx, audit.Entry{
		SubjectTable: "identities",
		SubjectID:    formatID(identity.ID),
		Action:       audit.ActionCreate,
		After:        audit.Snapshot(identity),
	})
	s.logger.Info("identity provisioned", "identity_id", identity.ID, "username", username, "role", identity.Role)
	return identity, nil
}

func (s *Service) loginFailed(ctx context.Context, username, reason string, fp Fingerprint) {
	s.audit.Record(ctx, audit.Entry{
		SubjectTable: "identities",
		SubjectID:    username,
		Action:       audit.ActionLoginFailed,
		After:        map[string]any{"reason": reason},
		IPAddress:    fp.IPAddress,
		UserAgent:    fp.UserAgent,
	})
}

func (s *Service) Logout(ctx context.Context, token string, fp Fingerprint) error {
	res, err := s.store.Validate(ctx, token, fp)
	if err != nil {
		s.logger.Error("session backend failure during logout", "error", err)
		return errors.ErrAuthenticationRequired
	}
	if res.Session == nil || res.Destroyed {
		return errors.ErrAuthenticationRequired
	}
	if err := s.store.Destroy(ctx, res.Session); err != nil {
		return errors.NewInternalError("failed to end session", err)
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, token string, fp Fingerprint) (*Session, Result, error) {
	return s.guard.Authenticate(ctx, token, fp)
}

func (s *Service) Require(res Result, required Role) error {
	return s.guard.Require(res, required)
}

// VerifyCSRF checks presented against the token the client sent, which may
// already have been regenerated by the time the request is served.
func (s *Service) VerifyCSRF(presented, sessionToken string) error {
	if err := s.csrf.Verify(presented, sessionToken); err != nil {
		return errors.ErrInvalidCSRFToken
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
