package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
	"github.com/frahmantamala/facilities-maintenance/pkg/logger"
)

type ctxKey string

const (
	contextPrincipalKey ctxKey = "principal"
	contextResultKey    ctxKey = "session_result"

	HeaderSessionToken = "X-Session-Token"
	HeaderCSRFToken    = "X-CSRF-Token"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func FingerprintFromRequest(r *http.Request) Fingerprint {
	return Fingerprint{IPAddress: transport.ClientIP(r), UserAgent: r.UserAgent()}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	res, err := h.Service.Login(r.Context(), dto, FingerprintFromRequest(r), h.ExtractTokenFromHeader(r))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	sess := res.Session
	w.Header().Set(HeaderSessionToken, sess.Token)
	w.Header().Set(HeaderCSRFToken, sess.CSRFToken)
	h.WriteJSON(w, http.StatusOK, LoginResponse{
		SessionToken: sess.Token,
		CSRFToken:    sess.CSRFToken,
		Identity:     res.Identity,
		IssuedAt:     sess.CreatedAt,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		h.WriteAppError(w, internal.ErrAuthenticationRequired)
		return
	}

	if err := h.Service.Logout(r.Context(), token, FingerprintFromRequest(r)); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware validates the session token, enforces the anti-forgery
// token on unsafe methods and puts the principal in the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, internal.ErrAuthenticationRequired)
			return
		}

		if !isSafeMethod(r.Method) {
			if err := h.Service.VerifyCSRF(r.Header.Get(HeaderCSRFToken), token); err != nil {
				h.Logger.Warn("auth middleware: csrf check failed", "method", r.Method, "path", r.URL.Path)
				h.WriteAppError(w, err)
				return
			}
		}

		sess, res, err := h.Service.Authenticate(r.Context(), token, FingerprintFromRequest(r))
		if err != nil {
			h.WriteAppError(w, err)
			return
		}

		if sess.Token != token {
			w.Header().Set(HeaderSessionToken, sess.Token)
			w.Header().Set(HeaderCSRFToken, sess.CSRFToken)
		}

		principal := sess.Principal()
		ctx := context.WithValue(r.Context(), contextPrincipalKey, principal)
		ctx = context.WithValue(ctx, contextResultKey, res)
		ctx = internal.ContextWithUserID(ctx, principal.ID)
		ctx = logger.With(ctx, "identity_id", principal.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole must run after AuthMiddleware.
func (h *Handler) RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := r.Context().Value(contextResultKey).(Result)
			if !ok {
				h.WriteAppError(w, internal.ErrAuthenticationRequired)
				return
			}
			if err := h.Service.Require(res, role); err != nil {
				logger.From(r.Context()).Info("role check denied", "required", role, "path", r.URL.Path)
				h.WriteAppError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextPrincipalKey).(*Principal)
	return p, ok && p != nil
}

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, p)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
