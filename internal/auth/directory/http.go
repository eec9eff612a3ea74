package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTP is a directory reached over a JSON API:
//
//	POST {base}/authenticate  {"username","password"}  200 | 401 | 404
//	GET  {base}/users/{username}                        200 | 404
//
// Any other outcome is reported as ErrDirectoryUnreachable.
type HTTP struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type directoryEntry struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Groups      []string `json:"groups"`
}

func NewHTTP(config HTTPConfig, logger *slog.Logger) *HTTP {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (d *HTTP) Authenticate(ctx context.Context, username, secret string) (*auth.VerifiedIdentity, error) {
	payload, err := json.Marshal(map[string]string{
		"username": auth.NormalizeUsername(username),
		"password": secret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authenticate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/authenticate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var entry directoryEntry
	switch status, err := d.do(req, &entry); {
	case err != nil:
		return nil, err
	case status == http.StatusUnauthorized:
		return nil, auth.ErrBadCredentials
	case status == http.StatusNotFound:
		return nil, auth.ErrDirectoryNotFound
	}

	return &auth.VerifiedIdentity{
		Username:    entry.Username,
		DisplayName: entry.DisplayName,
		Email:       entry.Email,
		Groups:      entry.Groups,
	}, nil
}

func (d *HTTP) Lookup(ctx context.Context, username string) (*auth.DirectoryRecord, error) {
	endpoint := d.baseURL + "/users/" + url.PathEscape(auth.NormalizeUsername(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	var entry directoryEntry
	switch status, err := d.do(req, &entry); {
	case err != nil:
		return nil, err
	case status == http.StatusNotFound:
		return nil, auth.ErrDirectoryNotFound
	}

	return &auth.DirectoryRecord{
		Username:    entry.Username,
		DisplayName: entry.DisplayName,
		Email:       entry.Email,
		Groups:      entry.Groups,
	}, nil
}

// do sends req and decodes a 200 body into out. 401 and 404 are returned
// as statuses for the caller to map; everything else is unreachable.
func (d *HTTP) do(req *http.Request, out *directoryEntry) (int, error) {
	req.Header.Set("Accept", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", auth.ErrDirectoryUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound:
		return resp.StatusCode, nil
	default:
		d.logger.Warn("directory returned unexpected status",
			"path", req.URL.Path,
			"status_code", resp.StatusCode)
		return resp.StatusCode, fmt.Errorf("%w: status %d", auth.ErrDirectoryUnreachable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to decode response: %v", auth.ErrDirectoryUnreachable, err)
	}
	if out.Username == "" {
		return resp.StatusCode, fmt.Errorf("%w: response carried no username", auth.ErrDirectoryUnreachable)
	}
	return resp.StatusCode, nil
}
