package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/auth/memory"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

// MockRecorder collects audit entries in memory.
type MockRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *MockRecorder) Record(_ context.Context, e audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *MockRecorder) Actions() []audit.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Action, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

const testSecret = "0123456789abcdef0123456789abcdef"

var _ = Describe("SessionStore", func() {
	var (
		ctx      context.Context
		clk      *clock.Fake
		backend  *memory.SessionBackend
		recorder *MockRecorder
		store    *auth.SessionStore
		cfg      auth.StoreConfig
		identity *auth.Identity
		f1       auth.Fingerprint
		f2       auth.Fingerprint
		logger   *slog.Logger
	)

	newStore := func() *auth.SessionStore {
		return auth.NewSessionStore(backend, clk, auth.NewCSRFSigner(testSecret), recorder, cfg, logger)
	}

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
		backend = memory.NewSessionBackend(clk)
		recorder = &MockRecorder{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		cfg = auth.StoreConfig{
			Timeout:              30 * time.Minute,
			RegenerationInterval: 15 * time.Minute,
			RegenerationGrace:    30 * time.Second,
		}
		store = newStore()

		identity = &auth.Identity{ID: 7, Username: "thandi", Role: auth.RoleTechnician, Status: auth.IdentityActive}
		f1 = auth.Fingerprint{IPAddress: "10.0.0.1", UserAgent: "Mozilla/5.0"}
		f2 = auth.Fingerprint{IPAddress: "10.9.9.9", UserAgent: "curl/8.0"}
	})

	Describe("Create", func() {
		It("should issue a random token stamped from the clock", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Token).To(HaveLen(64))
			Expect(sess.CreatedAt).To(Equal(clk.Now()))
			Expect(sess.LastActivity).To(Equal(clk.Now()))
			Expect(sess.Authenticated).To(BeTrue())
			Expect(sess.CSRFToken).NotTo(BeEmpty())
			Expect(recorder.Actions()).To(ContainElement(audit.ActionLoginSuccess))
		})

		It("should destroy the prior session presented by the caller", func() {
			first, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			second, err := store.Create(ctx, identity, f1, first.Token)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Token).NotTo(Equal(first.Token))

			res, err := store.Validate(ctx, first.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
		})
	})

	Describe("Validate", func() {
		It("should treat unknown and empty tokens as expired", func() {
			res, err := store.Validate(ctx, "does-not-exist", f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
			Expect(res.Session).To(BeNil())

			res, err = store.Validate(ctx, "", f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
		})

		It("should be valid one second before the timeout and expired at it", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(cfg.Timeout - time.Second)
			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusValid))

			clk.Advance(time.Second)
			res, err = store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
		})

		Context("when the fingerprint changes in soft mode", func() {
			It("should flag tampering, audit it and keep the session", func() {
				sess, err := store.Create(ctx, identity, f1, "")
				Expect(err).NotTo(HaveOccurred())

				res, err := store.Validate(ctx, sess.Token, f2)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(auth.StatusTampered))
				Expect(res.Destroyed).To(BeFalse())
				Expect(recorder.Actions()).To(ContainElement(audit.ActionSessionTampered))
				Expect(store.Authorize(res, auth.RoleUser).Allowed).To(BeTrue())

				res, err = store.Validate(ctx, sess.Token, f1)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(auth.StatusValid))
			})
		})

		Context("when the fingerprint changes in strict mode", func() {
			BeforeEach(func() {
				cfg.StrictFingerprint = true
				store = newStore()
			})

			It("should flag tampering and destroy the session", func() {
				sess, err := store.Create(ctx, identity, f1, "")
				Expect(err).NotTo(HaveOccurred())

				res, err := store.Validate(ctx, sess.Token, f2)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(auth.StatusTampered))
				Expect(res.Destroyed).To(BeTrue())
				Expect(recorder.Actions()).To(ContainElement(audit.ActionSessionTampered))

				d := store.Authorize(res, auth.RoleUser)
				Expect(d.Allowed).To(BeFalse())
				Expect(d.Reason).To(Equal(auth.DenyUnauthenticated))

				res, err = store.Validate(ctx, sess.Token, f1)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(auth.StatusExpired))
			})
		})
	})

	Describe("Touch", func() {
		It("should extend the idle window", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(10 * time.Minute)
			sess, err = store.Touch(ctx, sess)
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(cfg.Timeout - time.Second)
			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusValid))
		})

		It("should keep the token before the regeneration interval", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(cfg.RegenerationInterval - time.Second)
			touched, err := store.Touch(ctx, sess)
			Expect(err).NotTo(HaveOccurred())
			Expect(touched.Token).To(Equal(sess.Token))
		})

		It("should regenerate the token and forward the old one for the grace window", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(cfg.RegenerationInterval)
			regenerated, err := store.Touch(ctx, sess)
			Expect(err).NotTo(HaveOccurred())
			Expect(regenerated.Token).NotTo(Equal(sess.Token))
			Expect(regenerated.CSRFToken).NotTo(Equal(sess.CSRFToken))
			Expect(regenerated.IdentityID).To(Equal(identity.ID))

			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusValid))
			Expect(res.Session.Token).To(Equal(regenerated.Token))

			clk.Advance(cfg.RegenerationGrace)
			res, err = store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))

			res, err = store.Validate(ctx, regenerated.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusValid))
		})

		It("should give a repeated regeneration of the same token the existing successor", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(cfg.RegenerationInterval + time.Minute)
			first, err := store.Touch(ctx, sess)
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Touch(ctx, sess)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Token).To(Equal(first.Token))
			Expect(second.CSRFToken).To(Equal(first.CSRFToken))

			clk.Advance(cfg.RegenerationGrace)
			Expect(store.Destroy(ctx, second)).To(Succeed())
			for _, tok := range []string{sess.Token, first.Token, second.Token} {
				res, err := store.Validate(ctx, tok, f1)
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Status).To(Equal(auth.StatusExpired))
			}
		})

		It("should leave exactly one successor when requests regenerate concurrently", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())
			clk.Advance(cfg.RegenerationInterval)

			const racers = 8
			tokens := make([]string, racers)
			var wg sync.WaitGroup
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					touched, err := store.Touch(ctx, sess)
					Expect(err).NotTo(HaveOccurred())
					tokens[i] = touched.Token
				}(i)
			}
			wg.Wait()

			for _, tok := range tokens {
				Expect(tok).To(Equal(tokens[0]))
			}
			Expect(tokens[0]).NotTo(Equal(sess.Token))
			Expect(backend.Len()).To(Equal(2), "the successor and one forward record")

			res, err := store.Validate(ctx, tokens[0], f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Destroy(ctx, res.Session)).To(Succeed())

			res, err = store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
		})

		It("should not bring back a session destroyed under a stale copy", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Destroy(ctx, sess)).To(Succeed())

			_, err = store.Touch(ctx, sess)
			Expect(errors.Is(err, auth.ErrSessionNotFound)).To(BeTrue())

			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
		})
	})

	Describe("Destroy", func() {
		It("should end the session and audit the logout", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Destroy(ctx, sess)).To(Succeed())
			Expect(recorder.Actions()).To(ContainElement(audit.ActionLogout))

			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(auth.StatusExpired))
		})
	})

	Describe("Authorize", func() {
		It("should allow roles within the effective set", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())
			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Authorize(res, auth.RoleTechnician)).To(Equal(auth.Allowed))
			Expect(store.Authorize(res, auth.RoleUser)).To(Equal(auth.Allowed))
		})

		It("should deny roles above the session role", func() {
			sess, err := store.Create(ctx, identity, f1, "")
			Expect(err).NotTo(HaveOccurred())
			res, err := store.Validate(ctx, sess.Token, f1)
			Expect(err).NotTo(HaveOccurred())

			d := store.Authorize(res, auth.RoleManager)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(auth.DenyInsufficientRole))
		})

		It("should deny expired results as unauthenticated", func() {
			d := store.Authorize(auth.Result{Status: auth.StatusExpired}, auth.RoleUser)
			Expect(d.Allowed).To(BeFalse())
			Expect(d.Reason).To(Equal(auth.DenyUnauthenticated))
		})
	})
})

var _ = Describe("CSRFSigner", func() {
	It("should accept a token only for the session it was issued for", func() {
		signer := auth.NewCSRFSigner(testSecret)
		token, err := signer.Issue("session-a")
		Expect(err).NotTo(HaveOccurred())

		Expect(signer.Verify(token, "session-a")).To(Succeed())
		Expect(signer.Verify(token, "session-b")).To(MatchError(auth.ErrInvalidCSRF))
		Expect(signer.Verify("", "session-a")).To(MatchError(auth.ErrInvalidCSRF))
	})

	It("should reject tokens signed with another secret", func() {
		other := auth.NewCSRFSigner("ffffffffffffffffffffffffffffffff")
		token, err := other.Issue("session-a")
		Expect(err).NotTo(HaveOccurred())

		Expect(auth.NewCSRFSigner(testSecret).Verify(token, "session-a")).To(MatchError(auth.ErrInvalidCSRF))
	})
})
