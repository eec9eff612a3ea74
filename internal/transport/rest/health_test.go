package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/facilities-maintenance/internal/transport"
)

var _ = Describe("HealthHandler", func() {
	base := transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	check := func(h *HealthHandler) (int, HealthResponse) {
		rec := httptest.NewRecorder()
		h.healthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		var resp HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return rec.Code, resp
	}

	It("reports healthy when every dependency answers", func() {
		h := NewHealthHandler(base, map[string]CheckFunc{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return nil },
		})

		code, resp := check(h)
		Expect(code).To(Equal(http.StatusOK))
		Expect(resp.Status).To(Equal(HealthHealthy))
		Expect(resp.Components).To(HaveLen(2))
	})

	It("returns 503 and names the failing dependency", func() {
		h := NewHealthHandler(base, map[string]CheckFunc{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})

		code, resp := check(h)
		Expect(code).To(Equal(http.StatusServiceUnavailable))
		Expect(resp.Status).To(Equal(HealthUnhealthy))
		Expect(resp.Components["postgres"].Status).To(Equal(HealthHealthy))
		Expect(resp.Components["redis"].Message).To(Equal("connection refused"))
	})

	It("bounds a hanging check by the timeout", func() {
		h := NewHealthHandler(base, map[string]CheckFunc{
			"postgres": func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		})
		h.timeout = 20 * time.Millisecond

		code, resp := check(h)
		Expect(code).To(Equal(http.StatusServiceUnavailable))
		Expect(resp.Components["postgres"].Message).To(ContainSubstring("deadline"))
	})

	It("answers the liveness probe", func() {
		rec := httptest.NewRecorder()
		NewHealthHandler(base, nil).pingHandler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("OK"))
	})
})
