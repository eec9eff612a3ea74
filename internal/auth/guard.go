package auth

import (
	"context"
	stderrors "errors"
	"log/slog"

	errors "github.com/frahmantamala/facilities-maintenance/internal"
)

// IdentitySource resolves the identity behind a session.
type IdentitySource interface {
	GetByID(ctx context.Context, id int64) (*Identity, error)
}

// Guard is the single entry point for request authorization: validate the
// session, then ask the role hierarchy.
type Guard struct {
	store      *SessionStore
	identities IdentitySource
	logger     *slog.Logger
}

func NewGuard(store *SessionStore, identities IdentitySource, logger *slog.Logger) *Guard {
	return &Guard{store: store, identities: identities, logger: logger}
}

// Authenticate validates token and refreshes its activity. The session's role
// and status follow the identity as stored now, not as it was at login: an
// inactive or missing identity loses the session, a changed role is carried
// into it. The returned session may carry a new token if regeneration was
// due. Every failure maps to ErrAuthenticationRequired.
func (g *Guard) Authenticate(ctx context.Context, token string, fp Fingerprint) (*Session, Result, error) {
	res, err := g.store.Validate(ctx, token, fp)
	if err != nil {
		g.logger.Error("session backend failure", "error", err)
		return nil, res, errors.ErrAuthenticationRequired
	}

	if d := g.store.Authorize(res, RoleUser); !d.Allowed {
		g.logger.Debug("session rejected", "status", res.Status, "reason", d.Reason)
		return nil, res, errors.ErrAuthenticationRequired
	}

	current, err := g.currentIdentity(ctx, res.Session)
	if err != nil {
		return nil, res, err
	}
	if current.Role != res.Session.Role {
		g.logger.Info("session role follows identity",
			"identity_id", current.ID, "from", res.Session.Role, "to", current.Role)
		synced := *res.Session
		synced.Role = current.Role
		res.Session = &synced
	}

	sess, err := g.store.Touch(ctx, res.Session)
	if err != nil {
		g.logger.Error("failed to refresh session", "error", err, "identity_id", res.Session.IdentityID)
		return nil, res, errors.ErrAuthenticationRequired
	}
	res.Session = sess
	return sess, res, nil
}

func (g *Guard) currentIdentity(ctx context.Context, sess *Session) (*Identity, error) {
	identity, err := g.identities.GetByID(ctx, sess.IdentityID)
	switch {
	case err == nil && identity.IsActive():
		return identity, nil
	case err == nil:
		g.revoke(ctx, sess, "identity_inactive")
	case stderrors.Is(err, errors.ErrUserNotFound):
		g.revoke(ctx, sess, "identity_missing")
	default:
		g.logger.Error("failed to load session identity", "error", err, "identity_id", sess.IdentityID)
	}
	return nil, errors.ErrAuthenticationRequired
}

func (g *Guard) revoke(ctx context.Context, sess *Session, reason string) {
	if err := g.store.Revoke(ctx, sess, reason); err != nil {
		g.logger.Error("failed to revoke session", "error", err, "identity_id", sess.IdentityID)
	}
}

// Require maps an authorization decision for required onto the error
// taxonomy.
func (g *Guard) Require(res Result, required Role) error {
	d := g.store.Authorize(res, required)
	if d.Allowed {
		return nil
	}
	if d.Reason == DenyInsufficientRole {
		g.logger.Warn("access denied",
			"identity_id", res.Session.IdentityID,
			"role", res.Session.Role,
			"required_role", required)
		return errors.ErrInsufficientRole
	}
	return errors.ErrAuthenticationRequired
}

// RequirePrincipal is Require for code that only holds the principal.
func RequirePrincipal(p *Principal, required Role) error {
	if p == nil {
		return errors.ErrAuthenticationRequired
	}
	if !p.Has(required) {
		return errors.ErrInsufficientRole
	}
	return nil
}
