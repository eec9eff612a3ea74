package notification_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/facilities-maintenance/internal/call"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
)

var _ = Describe("Router", func() {
	var (
		ctx    context.Context
		source *MockCoordinators
		router *notification.Router
	)

	names := func(cs []*notification.Coordinator) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}

	BeforeEach(func() {
		ctx = context.Background()
		source = &MockCoordinators{coordinators: []*notification.Coordinator{
			{ID: 1, Name: "Cape Town desk", Email: "ct@example.org", Region: call.RegionCoastal, Provinces: []string{"Western Cape"}, IsActive: true},
			{ID: 2, Name: "Durban desk", Email: "dbn@example.org", Region: call.RegionCoastal, Provinces: []string{"KwaZulu-Natal"}, IsActive: true},
			{ID: 3, Name: "Retired WC desk", Email: "old@example.org", Region: call.RegionCoastal, Provinces: []string{"Western Cape"}, IsActive: false},
			{ID: 4, Name: "Joburg desk", Email: "jhb@example.org", Region: call.RegionInland, Provinces: []string{"Gauteng", "Western Cape"}, IsActive: true},
		}}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		router = notification.NewRouter(source, logger)
	})

	It("should pick active coordinators of the region covering the province", func() {
		got, err := router.Route(ctx, notification.CallSummary{Region: "coastal", Province: "Western Cape"})
		Expect(err).NotTo(HaveOccurred())
		Expect(names(got)).To(Equal([]string{"Cape Town desk"}))
	})

	It("should fall back to every active coordinator of the region", func() {
		got, err := router.Route(ctx, notification.CallSummary{Region: "coastal", Province: "Eastern Cape"})
		Expect(err).NotTo(HaveOccurred())
		Expect(names(got)).To(ConsistOf("Cape Town desk", "Durban desk"))
	})

	It("should return nothing when the region has no active coordinator", func() {
		source.coordinators = source.coordinators[:3]
		got, err := router.Route(ctx, notification.CallSummary{Region: "inland", Province: "Gauteng"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("should pass lookup failures to the caller", func() {
		source.err = errors.New("connection refused")
		_, err := router.Route(ctx, notification.CallSummary{Region: "coastal", Province: "Western Cape"})
		Expect(err).To(HaveOccurred())
	})
})
