package calltype

import (
	"context"
	"net/http"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
)

type ServiceAPI interface {
	GetAll(ctx context.Context) ([]CallTypeResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) GetCallTypes(w http.ResponseWriter, r *http.Request) {
	callTypes, err := h.Service.GetAll(r.Context())
	if err != nil {
		h.WriteAppError(w, internal.NewInternalError("failed to get call types", err))
		return
	}

	h.WriteJSON(w, http.StatusOK, CallTypesResponse{
		CallTypes: callTypes,
	})
}
