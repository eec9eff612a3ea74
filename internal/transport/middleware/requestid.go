package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
	"github.com/frahmantamala/facilities-maintenance/pkg/logger"
)

const HeaderTraceID = "X-Trace-ID"

// RequestID tags the request with a trace id and records its origin for the
// audit trail.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)
		ctx = internal.ContextWithOrigin(ctx, internal.Origin{
			IPAddress: transport.ClientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: traceID,
		})

		w.Header().Set(HeaderTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
