package module

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
	"github.com/hive-corporation/sochub/internal/audit"
	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

const (
	urlscanName    = "urlscan"
	urlscanVersion = "1.0.0"

	defaultUrlscanBaseURL = "https://urlscan.io"
)

// UrlscanConfig holds the urlscan.io connection settings.
type UrlscanConfig struct {
	BaseURL string // override for tests
	APIKey  string
	Timeout time.Duration
}

// UrlscanModule integrates urlscan.io for URL analysis and phishing
// detection: scan submission, result retrieval and historical search.
// Unlike the lookup-only reputation vendors, scan submission is a mutating
// call, so this is a standalone module rather than an IntelVendor entry.
type UrlscanModule struct {
	lifecycle
	cfg    UrlscanConfig
	client *vendorapi.Client
}

func NewUrlscanModule(cfg UrlscanConfig, httpClient vendorapi.Doer) *UrlscanModule {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultUrlscanBaseURL
	}

	client := vendorapi.NewClient(vendorapi.Profile{
		Module:     urlscanName,
		BaseURL:    cfg.BaseURL,
		QueryStyle: vendorapi.QueryPlain,
		HealthPath: "/api/v1/search/?q=domain%3Aurlscan.io&size=1",
		Timeout:    cfg.Timeout,
	}, httpClient, vendorapi.HeaderAuth{Header: "API-Key", Value: cfg.APIKey})

	return &UrlscanModule{
		lifecycle: lifecycle{status: domain.StatusUninitialized},
		cfg:       cfg,
		client:    client,
	}
}

func (m *UrlscanModule) Info() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:        urlscanName,
		Version:     urlscanVersion,
		Description: "URL analysis and phishing detection with urlscan.io",
		Capabilities: []domain.CapabilityTag{
			domain.CapabilityThreatIntelligence,
			domain.CapabilityNetworkAnalysis,
		},
		RequiresCredentials: true,
		Status:              m.status,
	}
}

func (m *UrlscanModule) Initialize(ctx context.Context) bool {
	var missing []string
	if m.cfg.APIKey == "" {
		missing = append(missing, "api_key")
	}
	return m.gate(ctx, urlscanName, missing, m.HealthCheck)
}

func (m *UrlscanModule) HealthCheck(ctx context.Context) domain.HealthResult {
	return m.client.Probe(ctx)
}

func (m *UrlscanModule) Capabilities() []domain.CapabilityDescriptor {
	return capabilities(urlscanName, m.Routes())
}

func (m *UrlscanModule) Routes() []ports.Route {
	return []ports.Route{
		{Name: "submit_scan", Description: "Submit a URL for scanning", Method: "POST", Path: "/scan", Op: m.submitScan},
		{Name: "get_result", Description: "Get results for a submitted scan", Method: "GET", Path: "/results/{id}", Op: m.getResult},
		{Name: "search", Description: "Search historical scans", Method: "GET", Path: "/search", Op: m.search},
	}
}

type scanSubmitRequest struct {
	URL        string   `json:"url,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (m *UrlscanModule) submitScan(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body scanSubmitRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.URL == "" {
		return nil, &domain.ValidationError{Message: "url is required"}
	}
	if body.Visibility == "" {
		body.Visibility = "public"
	}

	ack, err := m.client.Post(ctx, "/api/v1/scan/", body)
	audit.Action(urlscanName, "submit_scan", body.URL, err)
	return ack, err
}

// getResult fetches a finished scan. urlscan answers 404 while the scan is
// still running; callers poll until the result appears.
func (m *UrlscanModule) getResult(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.Get(ctx, "/api/v1/result/"+url.PathEscape(req.Vars["id"])+"/")
}

func (m *UrlscanModule) search(ctx context.Context, req ports.OperationRequest) (any, error) {
	query := req.Query.Get("q")
	if query == "" {
		return nil, &domain.ValidationError{Message: "q is required"}
	}

	params := url.Values{}
	params.Set("q", query)
	if top := req.Query.Get("top"); top != "" {
		params.Set("size", top)
	}

	raw, err := m.client.Get(ctx, "/api/v1/search/?"+params.Encode())
	if err != nil {
		return nil, err
	}

	// The search answer wraps matches in a results field; unwrap it so the
	// caller gets the collection directly, empty but never null.
	var envelope struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%s: failed to decode search body: %w", urlscanName, err)
	}
	if envelope.Results == nil {
		envelope.Results = []json.RawMessage{}
	}
	return envelope.Results, nil
}
