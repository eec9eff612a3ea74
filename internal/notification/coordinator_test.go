package notification_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	notificationDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
	notificationPostgres "github.com/frahmantamala/facilities-maintenance/internal/notification/postgres"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

type MockRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *MockRecorder) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *MockRecorder) Entries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...)
}

func expectValidation(err error) {
	GinkgoHelper()
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue())
	Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
}

var _ = Describe("CoordinatorService", func() {
	var (
		ctx      context.Context
		repo     *notificationPostgres.CoordinatorRepository
		recorder *MockRecorder
		service  *notification.CoordinatorService

		admin   *auth.Principal
		manager *auth.Principal
		tech    *auth.Principal
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&notificationDatamodel.Coordinator{})).To(Succeed())

		repo = notificationPostgres.NewCoordinatorRepository(db)
		recorder = &MockRecorder{}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = notification.NewCoordinatorService(repo, recorder, clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)), lg)

		admin = &auth.Principal{ID: 5, Username: "root", Role: auth.RoleAdmin}
		manager = &auth.Principal{ID: 4, Username: "ayesha", Role: auth.RoleManager}
		tech = &auth.Principal{ID: 2, Username: "tshepo", Role: auth.RoleTechnician}
	})

	capeTown := func() notification.CreateCoordinatorDTO {
		return notification.CreateCoordinatorDTO{
			Name:      "Cape Town desk",
			Email:     " CT@Example.org ",
			Region:    call.RegionCoastal,
			Provinces: []string{"Western Cape", "Western Cape"},
		}
	}

	Describe("Create", func() {
		It("should store a normalised coordinator and audit it", func() {
			c, err := service.Create(ctx, admin, capeTown())
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).NotTo(BeZero())
			Expect(c.Email).To(Equal("ct@example.org"))
			Expect(c.Provinces).To(Equal([]string{"Western Cape"}))
			Expect(c.IsActive).To(BeTrue())

			entries := recorder.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].SubjectTable).To(Equal("coordinators"))
			Expect(entries[0].Action).To(Equal(audit.ActionCreate))

			stored, err := repo.ListActiveByRegion(ctx, call.RegionCoastal)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Provinces).To(Equal([]string{"Western Cape"}))
			Expect(stored[0].CoversProvince("Western Cape")).To(BeTrue())
		})

		It("should be limited to administrators", func() {
			_, err := service.Create(ctx, manager, capeTown())
			Expect(err).To(MatchError(internal.ErrInsufficientRole))

			_, err = service.Create(ctx, nil, capeTown())
			Expect(err).To(MatchError(internal.ErrAuthenticationRequired))
		})

		It("should reject provinces outside the region", func() {
			dto := capeTown()
			dto.Provinces = []string{"Gauteng"}

			_, err := service.Create(ctx, admin, dto)
			expectValidation(err)
			Expect(err.Error()).To(ContainSubstring("Gauteng"))
			Expect(recorder.Entries()).To(BeEmpty())
		})

		It("should reject an unknown region", func() {
			dto := capeTown()
			dto.Region = "offshore"
			dto.Provinces = nil

			_, err := service.Create(ctx, admin, dto)
			expectValidation(err)
		})

		It("should report a duplicate email as a conflict", func() {
			_, err := service.Create(ctx, admin, capeTown())
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, admin, capeTown())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeConflict))
			Expect(appErr.Code).To(Equal(internal.ErrCodeDuplicate))
		})
	})

	Describe("Deactivate and List", func() {
		It("should hide deactivated coordinators from routing", func() {
			c, err := service.Create(ctx, admin, capeTown())
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Deactivate(ctx, admin, c.ID)).To(Succeed())

			active, err := repo.ListActiveByRegion(ctx, call.RegionCoastal)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())

			visible, err := service.List(ctx, manager, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(visible).To(BeEmpty())

			all, err := service.List(ctx, manager, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].IsActive).To(BeFalse())
		})

		It("should report unknown coordinators", func() {
			Expect(service.Deactivate(ctx, admin, 999)).To(MatchError(notification.ErrCoordinatorNotFound))
		})

		It("should keep the list away from technicians", func() {
			_, err := service.List(ctx, tech, false)
			Expect(err).To(MatchError(internal.ErrInsufficientRole))
		})
	})
})
