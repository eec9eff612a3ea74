package auth_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/auth/memory"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

type MockDirectory struct {
	passwords map[string]string
	groups    map[string][]string
	err       error
	block     bool
}

func (m *MockDirectory) Authenticate(ctx context.Context, username, secret string) (*auth.VerifiedIdentity, error) {
	if m.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", auth.ErrDirectoryUnreachable, ctx.Err())
	}
	if m.err != nil {
		return nil, m.err
	}
	pw, ok := m.passwords[username]
	if !ok {
		return nil, auth.ErrDirectoryNotFound
	}
	if pw != secret {
		return nil, auth.ErrBadCredentials
	}
	return &auth.VerifiedIdentity{Username: username, Email: username + "@example.org", Groups: m.groups[username]}, nil
}

func (m *MockDirectory) Lookup(_ context.Context, username string) (*auth.DirectoryRecord, error) {
	if _, ok := m.passwords[username]; !ok {
		return nil, auth.ErrDirectoryNotFound
	}
	return &auth.DirectoryRecord{Username: username}, nil
}

type MockIdentityRepository struct {
	mu     sync.Mutex
	byName map[string]*auth.Identity
	nextID int64
}

func NewMockIdentityRepository() *MockIdentityRepository {
	return &MockIdentityRepository{byName: make(map[string]*auth.Identity), nextID: 1}
}

func (m *MockIdentityRepository) GetByUsername(_ context.Context, username string) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byName[username]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *MockIdentityRepository) GetByID(_ context.Context, id int64) (*auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.byName {
		if i.ID == id {
			cp := *i
			return &cp, nil
		}
	}
	return nil, internal.ErrUserNotFound
}

func (m *MockIdentityRepository) Create(_ context.Context, identity *auth.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[identity.Username]; ok {
		return errors.New("UNIQUE constraint failed: identities.username")
	}
	identity.ID = m.nextID
	m.nextID++
	cp := *identity
	m.byName[identity.Username] = &cp
	return nil
}

// Update applies change to the stored identity, as an admin edit would.
func (m *MockIdentityRepository) Update(username string, change func(i *auth.Identity)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	change(m.byName[username])
}

func (m *MockIdentityRepository) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.byName {
		if i.ID == id {
			i.LastLoginAt = &at
			return nil
		}
	}
	return internal.ErrUserNotFound
}

var _ = Describe("Auth Service", func() {
	var (
		ctx        context.Context
		clk        *clock.Fake
		directory  *MockDirectory
		identities *MockIdentityRepository
		recorder   *MockRecorder
		store      *auth.SessionStore
		service    *auth.Service
		fp         auth.Fingerprint
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
		directory = &MockDirectory{
			passwords: map[string]string{"sipho": "correct-horse", "lerato": "battery-staple"},
			groups:    map[string][]string{"lerato": {"technician"}},
		}
		identities = NewMockIdentityRepository()
		recorder = &MockRecorder{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		csrf := auth.NewCSRFSigner(testSecret)
		store = auth.NewSessionStore(memory.NewSessionBackend(clk), clk, csrf, recorder, auth.StoreConfig{
			Timeout:              30 * time.Minute,
			RegenerationInterval: 15 * time.Minute,
			RegenerationGrace:    30 * time.Second,
		}, logger)
		service = auth.NewService(directory, identities, store, csrf, recorder, clk, 50*time.Millisecond, logger)
		fp = auth.Fingerprint{IPAddress: "192.168.1.10", UserAgent: "Mozilla/5.0"}
	})

	Describe("Login", func() {
		It("should provision an unknown identity with the default role", func() {
			res, err := service.Login(ctx, auth.LoginDTO{Username: "Sipho", Password: "correct-horse"}, fp, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identity.Username).To(Equal("sipho"))
			Expect(res.Identity.Role).To(Equal(auth.RoleUser))
			Expect(res.Identity.LastLoginAt).NotTo(BeNil())
			Expect(res.Session.IdentityID).To(Equal(res.Identity.ID))
			Expect(recorder.Actions()).To(ContainElements(audit.ActionCreate, audit.ActionLoginSuccess))
		})

		It("should map directory groups to a role on first login", func() {
			res, err := service.Login(ctx, auth.LoginDTO{Username: "lerato", Password: "battery-staple"}, fp, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identity.Role).To(Equal(auth.RoleTechnician))
		})

		It("should reuse an existing identity", func() {
			existing := &auth.Identity{Username: "sipho", Role: auth.RoleManager, Status: auth.IdentityActive}
			Expect(identities.Create(ctx, existing)).To(Succeed())

			res, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "correct-horse"}, fp, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identity.ID).To(Equal(existing.ID))
			Expect(res.Identity.Role).To(Equal(auth.RoleManager))
		})

		It("should reject a wrong password with the generic credentials error", func() {
			_, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "nope"}, fp, "")
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())
			Expect(recorder.Actions()).To(ContainElement(audit.ActionLoginFailed))
		})

		It("should give an unknown user the same error", func() {
			_, err := service.Login(ctx, auth.LoginDTO{Username: "ghost", Password: "x"}, fp, "")
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())
		})

		It("should hide directory outages behind the same error", func() {
			directory.err = auth.ErrDirectoryUnreachable
			_, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "correct-horse"}, fp, "")
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())
		})

		It("should bound the directory call by its timeout", func() {
			directory.block = true
			start := time.Now()
			_, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "correct-horse"}, fp, "")
			Expect(errors.Is(err, internal.ErrInvalidCredentials)).To(BeTrue())
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
		})

		It("should refuse inactive identities", func() {
			Expect(identities.Create(ctx, &auth.Identity{Username: "sipho", Role: auth.RoleUser, Status: auth.IdentityInactive})).To(Succeed())

			_, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "correct-horse"}, fp, "")
			Expect(errors.Is(err, internal.ErrUserInactive)).To(BeTrue())
			Expect(err.Error()).To(Equal(internal.ErrInvalidCredentials.Error()))
		})

		It("should require both fields", func() {
			_, err := service.Login(ctx, auth.LoginDTO{Username: "sipho"}, fp, "")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("Authenticate and Logout", func() {
		It("should authenticate a live session and reject it after logout", func() {
			res, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "correct-horse"}, fp, "")
			Expect(err).NotTo(HaveOccurred())

			sess, result, err := service.Authenticate(ctx, res.Session.Token, fp)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.IdentityID).To(Equal(res.Identity.ID))
			Expect(service.Require(result, auth.RoleUser)).To(Succeed())
			Expect(errors.Is(service.Require(result, auth.RoleAdmin), internal.ErrInsufficientRole)).To(BeTrue())

			Expect(service.Logout(ctx, res.Session.Token, fp)).To(Succeed())

			_, _, err = service.Authenticate(ctx, res.Session.Token, fp)
			Expect(errors.Is(err, internal.ErrAuthenticationRequired)).To(BeTrue())
		})

		It("should verify the anti-forgery token against the presented session", func() {
			res, err := service.Login(ctx, auth.LoginDTO{Username: "sipho", Password: "correct-horse"}, fp, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.VerifyCSRF(res.Session.CSRFToken, res.Session.Token)).To(Succeed())
			Expect(errors.Is(service.VerifyCSRF("forged", res.Session.Token), internal.ErrInvalidCSRFToken)).To(BeTrue())
		})
	})

	Describe("identity changes during a session", func() {
		var token string

		BeforeEach(func() {
			res, err := service.Login(ctx, auth.LoginDTO{Username: "lerato", Password: "battery-staple"}, fp, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Identity.Role).To(Equal(auth.RoleTechnician))
			token = res.Session.Token
		})

		It("should authorize against the demoted role on the next request", func() {
			identities.Update("lerato", func(i *auth.Identity) { i.Role = auth.RoleUser })

			sess, result, err := service.Authenticate(ctx, token, fp)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Role).To(Equal(auth.RoleUser))
			Expect(errors.Is(service.Require(result, auth.RoleTechnician), internal.ErrInsufficientRole)).To(BeTrue())
			Expect(service.Require(result, auth.RoleUser)).To(Succeed())
		})

		It("should carry a promotion into the live session", func() {
			identities.Update("lerato", func(i *auth.Identity) { i.Role = auth.RoleManager })

			_, result, err := service.Authenticate(ctx, token, fp)
			Expect(err).NotTo(HaveOccurred())
			Expect(service.Require(result, auth.RoleManager)).To(Succeed())
		})

		It("should revoke the session once the identity is deactivated", func() {
			identities.Update("lerato", func(i *auth.Identity) { i.Status = auth.IdentityInactive })

			_, _, err := service.Authenticate(ctx, token, fp)
			Expect(errors.Is(err, internal.ErrAuthenticationRequired)).To(BeTrue())
			Expect(recorder.Actions()).To(ContainElement(audit.ActionSessionRevoked))

			identities.Update("lerato", func(i *auth.Identity) { i.Status = auth.IdentityActive })
			_, _, err = service.Authenticate(ctx, token, fp)
			Expect(errors.Is(err, internal.ErrAuthenticationRequired)).To(BeTrue())
		})
	})
})
