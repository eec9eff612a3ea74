package directory_test

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

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/auth/directory"
)

var _ = Describe("HTTP directory", func() {
	var (
		server   *httptest.Server
		dir      *directory.HTTP
		lastAuth string
		delay    time.Duration
	)

	BeforeEach(func() {
		lastAuth = ""
		delay = 0

		mux := http.NewServeMux()
		mux.HandleFunc("/authenticate", func(w http.ResponseWriter, r *http.Request) {
			lastAuth = r.Header.Get("Authorization")
			time.Sleep(delay)

			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			switch {
			case body["username"] == "broken":
				w.WriteHeader(http.StatusBadGateway)
			case body["username"] == "ghost":
				w.WriteHeader(http.StatusNotFound)
			case body["username"] == "alice" && body["password"] == "s3cret":
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"username":     "alice",
					"display_name": "Alice Ndlovu",
					"email":        "alice@example.org",
					"groups":       []string{"facilities-technicians"},
				})
			default:
				w.WriteHeader(http.StatusUnauthorized)
			}
		})
		mux.HandleFunc("/users/alice", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"username": "alice", "email": "alice@example.org"})
		})
		mux.HandleFunc("/users/garbled", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		})
		server = httptest.NewServer(mux)

		dir = directory.NewHTTP(directory.HTTPConfig{
			BaseURL: server.URL + "/",
			APIKey:  "dir-key",
			Timeout: time.Second,
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Authenticate", func() {
		It("returns the verified identity on success", func() {
			identity, err := dir.Authenticate(context.Background(), "ALICE", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.Username).To(Equal("alice"))
			Expect(identity.Groups).To(ConsistOf("facilities-technicians"))
			Expect(lastAuth).To(Equal("Bearer dir-key"))
		})

		It("maps 401 to bad credentials", func() {
			_, err := dir.Authenticate(context.Background(), "alice", "wrong")
			Expect(err).To(MatchError(auth.ErrBadCredentials))
		})

		It("maps 404 to not found", func() {
			_, err := dir.Authenticate(context.Background(), "ghost", "x")
			Expect(err).To(MatchError(auth.ErrDirectoryNotFound))
		})

		It("treats other statuses as unreachable", func() {
			_, err := dir.Authenticate(context.Background(), "broken", "x")
			Expect(errors.Is(err, auth.ErrDirectoryUnreachable)).To(BeTrue())
		})

		It("honours the caller's deadline", func() {
			delay = 200 * time.Millisecond
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			_, err := dir.Authenticate(ctx, "alice", "s3cret")
			Expect(errors.Is(err, auth.ErrDirectoryUnreachable)).To(BeTrue())
		})
	})

	Describe("Lookup", func() {
		It("returns the directory record", func() {
			record, err := dir.Lookup(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Email).To(Equal("alice@example.org"))
		})

		It("maps an unknown user to not found", func() {
			_, err := dir.Lookup(context.Background(), "nobody")
			Expect(err).To(MatchError(auth.ErrDirectoryNotFound))
		})

		It("reports an undecodable body as unreachable", func() {
			_, err := dir.Lookup(context.Background(), "garbled")
			Expect(errors.Is(err, auth.ErrDirectoryUnreachable)).To(BeTrue())
		})
	})
})
