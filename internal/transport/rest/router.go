package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	"github.com/frahmantamala/facilities-maintenance/internal/calltype"
	"github.com/frahmantamala/facilities-maintenance/internal/metrics"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/transport/middleware"
	"github.com/frahmantamala/facilities-maintenance/internal/transport/swagger"
	"github.com/frahmantamala/facilities-maintenance/internal/user"
)

const APIPrefix = "/api/v1"

type Handlers struct {
	Health       *HealthHandler
	Auth         *auth.Handler
	User         *user.Handler
	Call         *call.Handler
	CallType     *calltype.Handler
	Notification *notification.Handler
	Audit        *audit.Handler
}

type RouterOptions struct {
	AllowedOrigins string
	OpenAPIPath    string
	MetricsPath    string
	LoginLimiter   *middleware.RateLimiter
	Validator      *middleware.RequestValidator
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts RouterOptions, logger *slog.Logger) {
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(metrics.Middleware)

	if opts.MetricsPath != "" {
		router.Handle(opts.MetricsPath, metrics.Handler())
	}

	if opts.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, opts.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route(APIPrefix, func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(opts.Validator.Middleware)
		}

		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		r.Route("/auth", func(ar chi.Router) {
			ar.Group(func(lr chi.Router) {
				if opts.LoginLimiter != nil {
					lr.Use(opts.LoginLimiter.Middleware)
				}
				lr.Post("/login", h.Auth.Login)
			})
			ar.Post("/logout", h.Auth.Logout)
		})

		if h.CallType != nil {
			r.Get("/call-types", h.CallType.GetCallTypes)
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Route("/users", func(ur chi.Router) {
				ur.Get("/me", h.User.GetCurrentUser)
				ur.With(h.Auth.RequireRole(auth.RoleManager)).Get("/", h.User.ListUsers)

				ur.Group(func(adm chi.Router) {
					adm.Use(h.Auth.RequireRole(auth.RoleAdmin))
					adm.Post("/", h.User.CreateUser)
					adm.Patch("/{id}/role", h.User.ChangeRole)
					adm.Patch("/{id}/status", h.User.SetStatus)
				})
			})

			// Role checks for assign and status depend on the call, so the
			// service makes them.
			pr.Route("/calls", func(cr chi.Router) {
				cr.Post("/", h.Call.CreateCall)
				cr.Get("/", h.Call.ListCalls)
				cr.Get("/{id}", h.Call.GetCall)
				cr.Patch("/{id}/assign", h.Call.AssignCall)
				cr.Patch("/{id}/status", h.Call.UpdateStatus)
				cr.Post("/{id}/comments", h.Call.AddComment)
				cr.Get("/{id}/comments", h.Call.GetComments)
				cr.Get("/{id}/attachments", h.Call.ListAttachments)
				cr.With(h.Auth.RequireRole(auth.RoleAdmin)).Delete("/{id}", h.Call.PurgeCall)
			})

			if h.Notification != nil {
				pr.Route("/coordinators", func(nr chi.Router) {
					nr.With(h.Auth.RequireRole(auth.RoleManager)).Get("/", h.Notification.ListCoordinators)
					nr.Group(func(adm chi.Router) {
						adm.Use(h.Auth.RequireRole(auth.RoleAdmin))
						adm.Post("/", h.Notification.CreateCoordinator)
						adm.Patch("/{id}/deactivate", h.Notification.DeactivateCoordinator)
					})
				})
				pr.With(h.Auth.RequireRole(auth.RoleManager)).Get("/notifications/stats", h.Notification.GetStats)
			}

			if h.Audit != nil {
				pr.With(h.Auth.RequireRole(auth.RoleAdmin)).Get("/audit", h.Audit.ListEntries)
			}
		})
	})
}
