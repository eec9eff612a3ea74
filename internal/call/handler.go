package call

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

type ServiceAPI interface {
	Create(ctx context.Context, actor *auth.Principal, dto CreateCallDTO) (*MaintenanceCall, error)
	Get(ctx context.Context, actor *auth.Principal, id string) (*MaintenanceCall, error)
	List(ctx context.Context, actor *auth.Principal, f ListFilter) ([]*MaintenanceCall, error)
	Assign(ctx context.Context, actor *auth.Principal, id string, assigneeID int64) (*MaintenanceCall, error)
	TransitionStatus(ctx context.Context, actor *auth.Principal, id string, next Status) (*MaintenanceCall, error)
	AddComment(ctx context.Context, actor *auth.Principal, callID string, dto CommentDTO) (*Comment, error)
	GetComments(ctx context.Context, actor *auth.Principal, callID string) ([]*Comment, error)
	ListAttachments(ctx context.Context, actor *auth.Principal, callID string) ([]*Attachment, error)
	Purge(ctx context.Context, actor *auth.Principal, id string) error
}

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

// CreateCall handles POST /calls
func (h *Handler) CreateCall(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	var dto CreateCallDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	c, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, NewCallResponse(c))
}

// ListCalls handles GET /calls?status=&region=&province=&assigned_to=
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	f := ListFilter{
		Status:   Status(q.Get("status")),
		Region:   Region(q.Get("region")),
		Province: q.Get("province"),
		Limit:    transport.QueryInt(r, "limit", 20),
		Offset:   transport.QueryInt(r, "offset", 0),
	}
	if raw := q.Get("assigned_to"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("assigned_to", "assigned_to must be an integer", internal.ErrCodeInvalidValue))
			return
		}
		f.AssignedTo = &id
	}

	calls, err := h.Service.List(r.Context(), actor, f)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Calls: calls, Limit: f.Limit, Offset: f.Offset})
}

// GetCall handles GET /calls/{id}
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	c, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewCallResponse(c))
}

// AssignCall handles PATCH /calls/{id}/assign
func (h *Handler) AssignCall(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	var dto AssignDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	c, err := h.Service.Assign(r.Context(), actor, chi.URLParam(r, "id"), dto.AssigneeID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewCallResponse(c))
}

// UpdateStatus handles PATCH /calls/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	var dto TransitionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	c, err := h.Service.TransitionStatus(r.Context(), actor, chi.URLParam(r, "id"), dto.Status)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewCallResponse(c))
}

// AddComment handles POST /calls/{id}/comments
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	var dto CommentDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	comment, err := h.Service.AddComment(r.Context(), actor, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, comment)
}

// GetComments handles GET /calls/{id}/comments
func (h *Handler) GetComments(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	comments, err := h.Service.GetComments(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CommentsResponse{Comments: comments})
}

// ListAttachments handles GET /calls/{id}/attachments
func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	attachments, err := h.Service.ListAttachments(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, AttachmentsResponse{Attachments: attachments})
}

// PurgeCall handles DELETE /calls/{id}
func (h *Handler) PurgeCall(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.PrincipalFromContext(r.Context())

	if err := h.Service.Purge(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.WriteAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
