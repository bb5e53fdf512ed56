package vendorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hive-corporation/sochub/internal/core/domain"
)

// DefaultSafetyMargin is subtracted from the vendor's expires_in so a token
// never expires mid-flight of a long-running dependent call.
const DefaultSafetyMargin = 5 * time.Minute

// ClientCredentialsConfig configures one OAuth2 client-credentials token
// source. Credentials are written once at construction and read-only after.
type ClientCredentialsConfig struct {
	Module       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	SafetyMargin time.Duration
	Timeout      time.Duration
}

// ClientCredentials caches a bearer token per module instance. While the
// cached token is valid, Token returns it with zero network calls; once
// expired it is replaced before the next authenticated call, never reused.
type ClientCredentials struct {
	cfg  ClientCredentialsConfig
	http Doer
	now  func() time.Time

	mu    sync.Mutex
	token domain.AccessToken
}

func NewClientCredentials(cfg ClientCredentialsConfig, httpClient Doer) *ClientCredentials {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &ClientCredentials{cfg: cfg, http: httpClient, now: time.Now}
}

// Token returns the cached token while it is valid, otherwise fetches a new
// one. The mutex covers the whole check-expiry / fetch / store sequence, so
// concurrent callers observe either the old valid token or the new one and at
// most one token request is in flight per module instance.
func (s *ClientCredentials) Token(ctx context.Context) (domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid(s.now()) {
		return s.token, nil
	}

	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		return domain.AccessToken{}, &domain.AuthError{
			Module: s.cfg.Module,
			Err:    fmt.Errorf("client credentials not configured"),
		}
	}

	token, err := s.fetch(ctx)
	if err != nil {
		RecordTokenRefresh(s.cfg.Module, "error")
		return domain.AccessToken{}, err
	}
	RecordTokenRefresh(s.cfg.Module, "success")
	s.token = token
	return s.token, nil
}

func (s *ClientCredentials) fetch(ctx context.Context) (domain.AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)
	form.Set("scope", s.cfg.Scope)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Module: s.cfg.Module, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Module: s.cfg.Module, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Module: s.cfg.Module, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return domain.AccessToken{}, &domain.AuthError{
			Module: s.cfg.Module,
			Err:    fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody)),
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.AccessToken{}, &domain.AuthError{
			Module: s.cfg.Module,
			Err:    fmt.Errorf("failed to decode token response: %w", err),
		}
	}
	if payload.AccessToken == "" {
		return domain.AccessToken{}, &domain.AuthError{
			Module: s.cfg.Module,
			Err:    fmt.Errorf("token response missing access_token"),
		}
	}

	lifetime := time.Duration(payload.ExpiresIn)*time.Second - s.cfg.SafetyMargin
	return domain.AccessToken{
		Value:     payload.AccessToken,
		ExpiresAt: s.now().Add(lifetime),
	}, nil
}
