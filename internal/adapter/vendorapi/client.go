package vendorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hive-corporation/sochub/internal/core/domain"
)

// Doer is the outbound HTTP surface the client needs. Satisfied by
// *http.Client and by ResilientClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// QueryStyle selects the vendor's list-endpoint parameter names. These are
// wire contracts and cannot be unified without breaking compatibility.
type QueryStyle int

const (
	// QueryOData uses $filter / $top / $orderby (Microsoft API family).
	QueryOData QueryStyle = iota
	// QueryPlain uses filter / limit / sort.
	QueryPlain
)

// Profile is the per-vendor descriptor table: one parameterized client type
// replaces a class per vendor.
type Profile struct {
	Module       string
	BaseURL      string
	QueryStyle   QueryStyle
	ListEnvelope string // field wrapping collections (e.g. "value"); empty = raw array
	HealthPath   string // cheap read-only endpoint for probes
	Timeout      time.Duration
	LongTimeout  time.Duration // long-running queries (advanced hunting)
}

// ListOptions are passed through verbatim as vendor-native query syntax.
// Malformed filters are a vendor-side 400, surfaced as VendorAPIError.
type ListOptions struct {
	Filter  string
	Top     int
	OrderBy string
}

const (
	defaultTimeout     = 15 * time.Second
	defaultLongTimeout = 120 * time.Second
	maxErrorBody       = 512
)

// Client issues authenticated calls against one vendor REST API and
// normalizes success and error into the shapes the modules share.
type Client struct {
	profile Profile
	http    Doer
	auth    AuthProvider
}

func NewClient(profile Profile, httpClient Doer, auth AuthProvider) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if profile.Timeout == 0 {
		profile.Timeout = defaultTimeout
	}
	if profile.LongTimeout == 0 {
		profile.LongTimeout = defaultLongTimeout
	}
	return &Client{profile: profile, http: httpClient, auth: auth}
}

// List fetches a collection. A vendor returning zero matches yields an empty
// slice, never nil and never an error.
func (c *Client) List(ctx context.Context, path string, opt ListOptions) ([]json.RawMessage, error) {
	raw, err := c.do(ctx, http.MethodGet, path, c.encodeListOptions(opt), nil, c.profile.Timeout)
	if err != nil {
		return nil, err
	}

	items := []json.RawMessage{}
	if c.profile.ListEnvelope != "" {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%s: failed to decode list envelope: %w", c.profile.Module, err)
		}
		raw = envelope[c.profile.ListEnvelope]
		if raw == nil {
			return items, nil
		}
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: failed to decode list body: %w", c.profile.Module, err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// Get fetches a single record. A vendor 404 surfaces as a VendorAPIError with
// StatusCode 404; use domain.IsNotFound to test for it.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil, nil, c.profile.Timeout)
}

// Post issues a mutating call and returns the vendor's acknowledgement
// payload as-is. Mutations are live actions against the vendor: exactly one
// request, no retry, no dedup.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, c.profile.Timeout)
}

// PostLong is Post with the profile's long-running timeout.
func (c *Client) PostLong(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, c.profile.LongTimeout)
}

// Patch issues a partial update. The caller is responsible for omitting unset
// fields from body; vendors must not receive nulls for absent fields.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body, c.profile.Timeout)
}

// Probe performs the one lightweight read-only call used to gate activation
// and answer health checks. Transport failure, non-success status and success
// map to three distinct health states.
func (c *Client) Probe(ctx context.Context) domain.HealthResult {
	ctx, cancel := context.WithTimeout(ctx, c.profile.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profile.BaseURL+c.profile.HealthPath, nil)
	if err != nil {
		return domain.HealthResult{Status: domain.HealthError, Message: err.Error()}
	}
	if c.auth != nil {
		if err := c.auth.Apply(ctx, req); err != nil {
			return domain.HealthResult{Status: domain.HealthError, Message: err.Error()}
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		RecordError(c.profile.Module, classifyTransportError(err))
		return domain.HealthResult{Status: domain.HealthError, Message: err.Error()}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.HealthResult{
			Status:  domain.HealthUnhealthy,
			Message: fmt.Sprintf("vendor returned status code %d", resp.StatusCode),
		}
	}
	return domain.HealthResult{
		Status:  domain.HealthHealthy,
		Message: "connected to " + c.profile.Module,
		Detail:  map[string]string{"endpoint": c.profile.BaseURL},
	}
}

func (c *Client) encodeListOptions(opt ListOptions) url.Values {
	q := url.Values{}
	filter, top, orderBy := "filter", "limit", "sort"
	if c.profile.QueryStyle == QueryOData {
		filter, top, orderBy = "$filter", "$top", "$orderby"
	}
	if opt.Filter != "" {
		q.Set(filter, opt.Filter)
	}
	if opt.Top > 0 {
		q.Set(top, strconv.Itoa(opt.Top))
	}
	if opt.OrderBy != "" {
		q.Set(orderBy, opt.OrderBy)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.profile.BaseURL + path
	if len(query) > 0 {
		sep := "?"
		if urlHasQuery(path) {
			sep = "&"
		}
		target += sep + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request body: %w", c.profile.Module, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", c.profile.Module, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.Apply(ctx, req); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	RecordDuration(c.profile.Module, time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			RecordRequest(c.profile.Module, method, "timeout")
			RecordError(c.profile.Module, "timeout")
			return nil, &domain.TimeoutError{Module: c.profile.Module, Err: err}
		}
		RecordRequest(c.profile.Module, method, "transport_error")
		RecordError(c.profile.Module, classifyTransportError(err))
		return nil, fmt.Errorf("%s: vendor call failed: %w", c.profile.Module, err)
	}
	defer resp.Body.Close()

	RecordRequest(c.profile.Module, method, strconv.Itoa(resp.StatusCode))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", c.profile.Module, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		RecordError(c.profile.Module, classifyStatusError(resp.StatusCode))
		return nil, &domain.VendorAPIError{
			Module:     c.profile.Module,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(payload), maxErrorBody),
		}
	}

	if len(payload) == 0 {
		return nil, nil
	}
	return json.RawMessage(payload), nil
}

func urlHasQuery(path string) bool {
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func classifyStatusError(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "auth"
	case http.StatusTooManyRequests:
		return "rate_limit"
	case http.StatusNotFound:
		return "not_found"
	default:
		if status >= 500 {
			return "server_error"
		}
		return "http_error"
	}
}

func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "connection"
}
