package call_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
)

// StubService answers from a single in-memory call and records what the
// handler passed through.
type StubService struct {
	call.ServiceAPI
	current    *call.MaintenanceCall
	lastActor  *auth.Principal
	lastID     string
	lastNext   call.Status
	lastFilter call.ListFilter
	err        error
}

func (s *StubService) Get(_ context.Context, actor *auth.Principal, id string) (*call.MaintenanceCall, error) {
	s.lastActor, s.lastID = actor, id
	if s.err != nil {
		return nil, s.err
	}
	return s.current, nil
}

func (s *StubService) List(_ context.Context, actor *auth.Principal, f call.ListFilter) ([]*call.MaintenanceCall, error) {
	s.lastActor, s.lastFilter = actor, f
	return []*call.MaintenanceCall{s.current}, nil
}

func (s *StubService) TransitionStatus(_ context.Context, actor *auth.Principal, id string, next call.Status) (*call.MaintenanceCall, error) {
	s.lastActor, s.lastID, s.lastNext = actor, id, next
	if s.err != nil {
		return nil, s.err
	}
	s.current.Status = next
	return s.current, nil
}

func (s *StubService) Purge(_ context.Context, actor *auth.Principal, id string) error {
	s.lastActor, s.lastID = actor, id
	return s.err
}

var _ = Describe("Call Handler", func() {
	var (
		stub   *StubService
		router http.Handler
		actor  *auth.Principal
	)

	BeforeEach(func() {
		reported := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
		minutes := 90
		stub = &StubService{current: &call.MaintenanceCall{
			ID:                  "c-1",
			CallNumber:          call.FormatCallNumber(reported, 12),
			Priority:            call.PriorityHigh,
			Status:              call.StatusInProgress,
			Region:              call.RegionInland,
			Province:            "Gauteng",
			ReportedDate:        reported,
			ResponseTimeMinutes: &minutes,
		}}
		actor = &auth.Principal{ID: 5, Username: "tech.one", Role: auth.RoleTechnician}

		h := call.NewHandler(stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(auth.ContextWithPrincipal(req.Context(), actor)))
			})
		})
		r.Get("/calls", h.ListCalls)
		r.Get("/calls/{id}", h.GetCall)
		r.Patch("/calls/{id}/status", h.UpdateStatus)
		r.Delete("/calls/{id}", h.PurgeCall)
		router = r
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var rd io.Reader
		if body != "" {
			rd = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, rd)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("returns the call with its response target and SLA outcome", func() {
		rec := do(http.MethodGet, "/calls/c-1", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(stub.lastID).To(Equal("c-1"))
		Expect(stub.lastActor).To(Equal(actor))

		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["call_number"]).To(Equal("MC-202405-0012"))
		Expect(body["response_target_minutes"]).To(BeEquivalentTo(240))
		Expect(body["met_response_target"]).To(BeTrue())
	})

	It("renders service errors through the error envelope", func() {
		stub.err = internal.ErrCallNotFound
		rec := do(http.MethodGet, "/calls/missing", "")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodeCallNotFound)))
	})

	It("passes the requested status through to the service", func() {
		rec := do(http.MethodPatch, "/calls/c-1/status", `{"status":"Resolved"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(stub.lastNext).To(Equal(call.StatusResolved))
	})

	It("rejects an unknown status before reaching the service", func() {
		rec := do(http.MethodPatch, "/calls/c-1/status", `{"status":"reopened"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(stub.lastNext).To(BeEmpty())
	})

	It("rejects unknown body fields", func() {
		rec := do(http.MethodPatch, "/calls/c-1/status", `{"status":"resolved","force":true}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("maps an illegal transition to a validation error", func() {
		stub.err = internal.ErrInvalidTransition
		rec := do(http.MethodPatch, "/calls/c-1/status", `{"status":"open"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring(string(internal.ErrCodeInvalidTransition)))
	})

	It("builds the list filter from the query string", func() {
		rec := do(http.MethodGet, "/calls?status=open&region=coastal&province=Western+Cape&assigned_to=5&limit=5&offset=10", "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(stub.lastFilter.Status).To(Equal(call.StatusOpen))
		Expect(stub.lastFilter.Region).To(Equal(call.RegionCoastal))
		Expect(stub.lastFilter.Province).To(Equal("Western Cape"))
		Expect(*stub.lastFilter.AssignedTo).To(Equal(int64(5)))
		Expect(stub.lastFilter.Limit).To(Equal(5))
		Expect(stub.lastFilter.Offset).To(Equal(10))
	})

	It("rejects a non-numeric assigned_to", func() {
		rec := do(http.MethodGet, "/calls?assigned_to=me", "")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers a purge with no content", func() {
		rec := do(http.MethodDelete, "/calls/c-1", "")
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(stub.lastID).To(Equal("c-1"))
	})
})
