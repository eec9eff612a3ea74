package notification

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
)

type CoordinatorServiceAPI interface {
	Create(ctx context.Context, actor *auth.Principal, dto CreateCoordinatorDTO) (*Coordinator, error)
	Deactivate(ctx context.Context, actor *auth.Principal, id int64) error
	List(ctx context.Context, actor *auth.Principal, includeInactive bool) ([]*Coordinator, error)
}

type StatsAPI interface {
	Stats(ctx context.Context) (*Stats, error)
}

type Handler struct {
	*transport.BaseHandler
	Coordinators CoordinatorServiceAPI
	StatsSource  StatsAPI
}

func NewHandler(coordinators CoordinatorServiceAPI, stats StatsAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:  transport.NewBaseHandler(lg),
		Coordinators: coordinators,
		StatsSource:  stats,
	}
}

// ListCoordinators handles GET /coordinators?include_inactive=true
func (h *Handler) ListCoordinators(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	coordinators, err := h.Coordinators.List(r.Context(), actor, includeInactive)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CoordinatorsResponse{Coordinators: coordinators})
}

// CreateCoordinator handles POST /coordinators
func (h *Handler) CreateCoordinator(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	var dto CreateCoordinatorDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	c, err := h.Coordinators.Create(r.Context(), actor, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, c)
}

// DeactivateCoordinator handles PATCH /coordinators/{id}/deactivate
func (h *Handler) DeactivateCoordinator(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, internal.NewValidationFieldError("id", "id must be a positive integer", internal.ErrCodeInvalidValue))
		return
	}

	if err := h.Coordinators.Deactivate(r.Context(), actor, id); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats handles GET /notifications/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.StatsSource.Stats(r.Context())
	if err != nil {
		h.WriteAppError(w, internal.NewInternalError("failed to load notification stats", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, stats)
}
