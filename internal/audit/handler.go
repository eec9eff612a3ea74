package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

type ListResponse struct {
	Entries []*Entry `json:"entries"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Handler serves the audit trail. Route registration restricts it to admins.
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

// ListEntries handles GET /audit
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		SubjectTable: q.Get("subject_table"),
		SubjectID:    q.Get("subject_id"),
		Action:       Action(q.Get("action")),
		Limit:        transport.QueryInt(r, "limit", 50),
		Offset:       transport.QueryInt(r, "offset", 0),
	}
	if raw := q.Get("actor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("actor_id", "actor_id must be an integer", internal.ErrCodeInvalidValue))
			return
		}
		f.ActorID = &id
	}

	entries, err := h.Service.List(r.Context(), f)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Entries: entries, Limit: f.Limit, Offset: f.Offset})
}
