package user_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	userDatamodel "github.com/frahmantamala/facilities-maintenance/internal/core/datamodel/user"
	"github.com/frahmantamala/facilities-maintenance/internal/user"
	userPostgres "github.com/frahmantamala/facilities-maintenance/internal/user/postgres"
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

func expectErrorType(err error, t internal.ErrorType) {
	appErr, ok := internal.IsAppError(err)
	ExpectWithOffset(1, ok).To(BeTrue(), "expected an AppError, got %v", err)
	ExpectWithOffset(1, appErr.Type).To(Equal(t))
}

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		repo     *userPostgres.UserRepository
		recorder *MockRecorder
		svc      *user.Service
		admin    *auth.Principal
		manager  *auth.Principal
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
		Expect(db.AutoMigrate(&userDatamodel.Identity{})).To(Succeed())

		repo = userPostgres.NewUserRepository(db)
		recorder = &MockRecorder{}
		svc = user.NewService(repo, recorder, bcrypt.MinCost, slog.New(slog.NewTextHandler(io.Discard, nil)))

		admin = &auth.Principal{ID: 1000, Username: "root", Role: auth.RoleAdmin}
		manager = &auth.Principal{ID: 1001, Username: "boss", Role: auth.RoleManager}
	})

	provision := func(username string, role auth.Role) *auth.Identity {
		identity, err := svc.Provision(ctx, admin, user.ProvisionDTO{
			Username:    username,
			DisplayName: username,
			Role:        role,
		})
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return identity
	}

	Describe("Provision", func() {
		It("stores a normalised username and a bcrypt hash", func() {
			identity, err := svc.Provision(ctx, admin, user.ProvisionDTO{
				Username:    "Thandi.M",
				DisplayName: "Thandi M",
				Email:       "thandi@example.org",
				Role:        auth.RoleTechnician,
				Password:    "correct horse",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.Username).To(Equal("thandi.m"))
			Expect(identity.Status).To(Equal(auth.IdentityActive))

			stored, err := repo.GetByUsername(ctx, "THANDI.M")
			Expect(err).NotTo(HaveOccurred())
			Expect(bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse"))).To(Succeed())

			entries := recorder.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Action).To(Equal(audit.ActionCreate))
			Expect(entries[0].SubjectTable).To(Equal("identities"))
		})

		It("is admin only", func() {
			_, err := svc.Provision(ctx, manager, user.ProvisionDTO{Username: "x", DisplayName: "x", Role: auth.RoleUser})
			Expect(err).To(MatchError(internal.ErrInsufficientRole))
		})

		It("rejects an unknown role", func() {
			_, err := svc.Provision(ctx, admin, user.ProvisionDTO{Username: "x", DisplayName: "x", Role: auth.Role("janitor")})
			expectErrorType(err, internal.ErrorTypeValidation)
		})

		It("reports a taken username as a conflict", func() {
			provision("sipho", auth.RoleUser)
			_, err := svc.Provision(ctx, admin, user.ProvisionDTO{Username: "SIPHO", DisplayName: "Sipho", Role: auth.RoleUser})
			expectErrorType(err, internal.ErrorTypeConflict)
		})
	})

	Describe("ChangeRole", func() {
		It("changes the role and records the before and after", func() {
			target := provision("lerato", auth.RoleUser)

			updated, err := svc.ChangeRole(ctx, admin, target.ID, user.ChangeRoleDTO{Role: auth.RoleTechnician})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Role).To(Equal(auth.RoleTechnician))

			stored, err := repo.GetByID(ctx, target.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Role).To(Equal(auth.RoleTechnician))

			entries := recorder.Entries()
			last := entries[len(entries)-1]
			Expect(last.Action).To(Equal(audit.ActionRoleChange))
			Expect(last.Before).To(HaveKeyWithValue("role", "user"))
			Expect(last.After).To(HaveKeyWithValue("role", "technician"))
		})

		It("does nothing when the role is unchanged", func() {
			target := provision("lerato", auth.RoleUser)
			before := len(recorder.Entries())

			_, err := svc.ChangeRole(ctx, admin, target.ID, user.ChangeRoleDTO{Role: auth.RoleUser})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.Entries()).To(HaveLen(before))
		})

		It("refuses an administrator changing their own role", func() {
			_, err := svc.ChangeRole(ctx, admin, admin.ID, user.ChangeRoleDTO{Role: auth.RoleUser})
			expectErrorType(err, internal.ErrorTypeValidation)
		})

		It("returns not found for an unknown identity", func() {
			_, err := svc.ChangeRole(ctx, admin, 999, user.ChangeRoleDTO{Role: auth.RoleManager})
			Expect(err).To(MatchError(internal.ErrUserNotFound))
		})

		It("is admin only", func() {
			target := provision("lerato", auth.RoleUser)
			_, err := svc.ChangeRole(ctx, manager, target.ID, user.ChangeRoleDTO{Role: auth.RoleManager})
			Expect(err).To(MatchError(internal.ErrInsufficientRole))
		})
	})

	Describe("SetStatus", func() {
		It("deactivates without deleting", func() {
			target := provision("naledi", auth.RoleTechnician)

			updated, err := svc.SetStatus(ctx, admin, target.ID, user.SetStatusDTO{Status: auth.IdentityInactive})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.IsActive()).To(BeFalse())

			stored, err := repo.GetByID(ctx, target.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(auth.IdentityInactive))
		})

		It("rejects an unknown status", func() {
			target := provision("naledi", auth.RoleTechnician)
			_, err := svc.SetStatus(ctx, admin, target.ID, user.SetStatusDTO{Status: auth.IdentityStatus("banned")})
			expectErrorType(err, internal.ErrorTypeValidation)
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			provision("tech.b", auth.RoleTechnician)
			provision("tech.a", auth.RoleTechnician)
			provision("reporter", auth.RoleUser)
		})

		It("filters by role in username order", func() {
			users, err := svc.List(ctx, manager, user.ListFilter{Role: auth.RoleTechnician})
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
			Expect(users[0].Username).To(Equal("tech.a"))
		})

		It("needs manager", func() {
			_, err := svc.List(ctx, &auth.Principal{ID: 9, Role: auth.RoleTechnician}, user.ListFilter{})
			Expect(err).To(MatchError(internal.ErrInsufficientRole))
		})
	})

	Describe("Me", func() {
		It("requires a principal", func() {
			_, err := svc.Me(ctx, nil)
			Expect(err).To(MatchError(internal.ErrAuthenticationRequired))
		})

		It("returns the caller's identity", func() {
			target := provision("zanele", auth.RoleUser)
			me, err := svc.Me(ctx, &auth.Principal{ID: target.ID, Role: auth.RoleUser})
			Expect(err).NotTo(HaveOccurred())
			Expect(me.Username).To(Equal("zanele"))
		})
	})
})
