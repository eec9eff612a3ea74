package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/metrics"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

const (
	tokenBytes = 32

	forwardLinger = 5 * time.Second
)

type StoreConfig struct {
	Timeout              time.Duration
	RegenerationInterval time.Duration
	RegenerationGrace    time.Duration
	// StrictFingerprint destroys a session on fingerprint mismatch instead of
	// only logging it.
	StrictFingerprint bool
}

type AuditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

// SessionStore owns the session lifecycle. Time comes from the injected clock
// and state lives in the injected backend.
type SessionStore struct {
	backend Backend
	clock   clock.Clock
	csrf    *CSRFSigner
	audit   AuditRecorder
	cfg     StoreConfig
	logger  *slog.Logger
}

func NewSessionStore(backend Backend, clk clock.Clock, csrf *CSRFSigner, recorder AuditRecorder, cfg StoreConfig, logger *slog.Logger) *SessionStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &SessionStore{
		backend: backend,
		clock:   clk,
		csrf:    csrf,
		audit:   recorder,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *SessionStore) Config() StoreConfig {
	return s.cfg
}

// Create starts a fresh session for identity. Any session still held under
// priorToken is removed first.
func (s *SessionStore) Create(ctx context.Context, identity *Identity, fp Fingerprint, priorToken string) (*Session, error) {
	if priorToken != "" {
		if err := s.backend.Delete(ctx, priorToken); err != nil {
			s.logger.Warn("failed to clear prior session", "error", err)
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	csrfToken, err := s.csrf.Issue(token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess := &Session{
		Token:            token,
		IdentityID:       identity.ID,
		Username:         identity.Username,
		Role:             identity.Role,
		CreatedAt:        now,
		LastActivity:     now,
		LastRegeneration: now,
		Fingerprint:      fp,
		Authenticated:    true,
		CSRFToken:        csrfToken,
	}

	if err := s.backend.Save(ctx, token, sess, s.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(identity.ID),
		SubjectTable: "sessions",
		SubjectID:    strconv.FormatInt(identity.ID, 10),
		Action:       audit.ActionLoginSuccess,
		After:        map[string]any{"username": identity.Username, "role": string(identity.Role)},
		IPAddress:    fp.IPAddress,
		UserAgent:    fp.UserAgent,
	})

	s.logger.Info("session created", "identity_id", identity.ID, "username", identity.Username)
	return sess, nil
}

// Validate resolves token against the current request fingerprint. A
// regenerated token keeps resolving to its successor for the grace window.
// The returned error is only set for backend failures; the Result is then
// StatusExpired.
func (s *SessionStore) Validate(ctx context.Context, token string, fp Fingerprint) (Result, error) {
	if token == "" {
		metrics.RecordSessionValidation(string(StatusExpired))
		return Result{Status: StatusExpired}, nil
	}

	now := s.clock.Now()
	sess, err := s.backend.Get(ctx, token)
	if err != nil {
		metrics.RecordSessionValidation(string(StatusExpired))
		if errors.Is(err, ErrSessionNotFound) {
			return Result{Status: StatusExpired}, nil
		}
		return Result{Status: StatusExpired}, fmt.Errorf("load session: %w", err)
	}

	if sess.IsForward() {
		if now.Sub(sess.LastRegeneration) >= s.cfg.RegenerationGrace {
			_ = s.backend.Delete(ctx, token)
			metrics.RecordSessionValidation(string(StatusExpired))
			return Result{Status: StatusExpired}, nil
		}
		successor, err := s.backend.Get(ctx, sess.ForwardTo)
		if err != nil {
			metrics.RecordSessionValidation(string(StatusExpired))
			if errors.Is(err, ErrSessionNotFound) {
				return Result{Status: StatusExpired}, nil
			}
			return Result{Status: StatusExpired}, fmt.Errorf("load regenerated session: %w", err)
		}
		sess = successor
	}

	if now.Sub(sess.LastActivity) >= s.cfg.Timeout {
		if err := s.backend.Delete(ctx, sess.Token); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		metrics.RecordSessionValidation(string(StatusExpired))
		return Result{Status: StatusExpired}, nil
	}

	if !sess.Fingerprint.Matches(fp) {
		return s.tampered(ctx, sess, fp), nil
	}

	metrics.RecordSessionValidation(string(StatusValid))
	return Result{Status: StatusValid, Session: sess}, nil
}

func (s *SessionStore) tampered(ctx context.Context, sess *Session, fp Fingerprint) Result {
	metrics.RecordSessionValidation(string(StatusTampered))
	s.logger.Warn("session fingerprint mismatch",
		"identity_id", sess.IdentityID,
		"expected_ip", sess.Fingerprint.IPAddress,
		"actual_ip", fp.IPAddress,
		"user_agent_changed", sess.Fingerprint.UserAgent != fp.UserAgent,
		"strict", s.cfg.StrictFingerprint)

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(sess.IdentityID),
		SubjectTable: "sessions",
		SubjectID:    strconv.FormatInt(sess.IdentityID, 10),
		Action:       audit.ActionSessionTampered,
		Before:       audit.Snapshot(sess.Fingerprint),
		After:        audit.Snapshot(fp),
		IPAddress:    fp.IPAddress,
		UserAgent:    fp.UserAgent,
	})

	if !s.cfg.StrictFingerprint {
		return Result{Status: StatusTampered, Session: sess}
	}

	if err := s.backend.Delete(ctx, sess.Token); err != nil {
		s.logger.Error("failed to destroy tampered session", "error", err, "identity_id", sess.IdentityID)
	}
	return Result{Status: StatusTampered, Session: sess, Destroyed: true}
}

// Touch refreshes last activity and, once the regeneration interval has
// passed, moves the session to a new token. The old token becomes a forward
// record valid for the grace window so in-flight requests are not cut off.
// Concurrent requests racing to regenerate the same token all end up on the
// single successor the first of them created.
func (s *SessionStore) Touch(ctx context.Context, sess *Session) (*Session, error) {
	now := s.clock.Now()
	updated := *sess
	updated.LastActivity = now

	if now.Sub(sess.LastRegeneration) < s.cfg.RegenerationInterval {
		live, err := s.backend.Refresh(ctx, &updated, s.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		return live, nil
	}

	newTok, err := newToken()
	if err != nil {
		return nil, err
	}
	csrfToken, err := s.csrf.Issue(newTok)
	if err != nil {
		return nil, err
	}

	oldToken := sess.Token
	updated.Token = newTok
	updated.CSRFToken = csrfToken
	updated.LastRegeneration = now

	forward := &Session{
		Token:            oldToken,
		IdentityID:       sess.IdentityID,
		LastRegeneration: now,
		ForwardTo:        newTok,
	}
	// Validate stops honouring the forward record after the grace window;
	// the key outlives it briefly so a racing rotation still finds it.
	forwardTTL := s.cfg.RegenerationGrace + forwardLinger

	live, err := s.backend.Rotate(ctx, oldToken, &updated, s.cfg.Timeout, forward, forwardTTL)
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if live.Token == newTok {
		s.logger.Debug("session token regenerated", "identity_id", sess.IdentityID)
	} else {
		s.logger.Debug("session already regenerated by a concurrent request", "identity_id", sess.IdentityID)
	}
	return live, nil
}

func (s *SessionStore) Destroy(ctx context.Context, sess *Session) error {
	if err := s.backend.Delete(ctx, sess.Token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(sess.IdentityID),
		SubjectTable: "sessions",
		SubjectID:    strconv.FormatInt(sess.IdentityID, 10),
		Action:       audit.ActionLogout,
		Before:       map[string]any{"username": sess.Username},
	})

	s.logger.Info("session destroyed", "identity_id", sess.IdentityID)
	return nil
}

// Revoke removes a session the caller may no longer hold, for example because
// its identity was deactivated.
func (s *SessionStore) Revoke(ctx context.Context, sess *Session, reason string) error {
	if err := s.backend.Delete(ctx, sess.Token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(sess.IdentityID),
		SubjectTable: "sessions",
		SubjectID:    strconv.FormatInt(sess.IdentityID, 10),
		Action:       audit.ActionSessionRevoked,
		After:        map[string]any{"reason": reason},
	})

	s.logger.Warn("session revoked", "identity_id", sess.IdentityID, "reason", reason)
	return nil
}

// Authorize decides whether a validated session may act as required. A
// tampered session is still usable in soft mode.
func (s *SessionStore) Authorize(res Result, required Role) Decision {
	switch res.Status {
	case StatusValid:
	case StatusTampered:
		if s.cfg.StrictFingerprint || res.Destroyed {
			return Decision{Reason: DenyUnauthenticated}
		}
	default:
		return Decision{Reason: DenyUnauthenticated}
	}

	if res.Session == nil || !res.Session.Authenticated {
		return Decision{Reason: DenyUnauthenticated}
	}
	if !res.Session.Role.Includes(required) {
		return Decision{Reason: DenyInsufficientRole}
	}
	return Allowed
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
