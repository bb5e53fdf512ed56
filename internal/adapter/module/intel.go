package module

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

// IntelVendor is the per-vendor descriptor table for the reputation-lookup
// family. The vendors are structurally identical apart from base URL, auth
// placement and lookup paths, so one module type serves them all.
type IntelVendor struct {
	Name         string
	Version      string
	Description  string
	Capabilities []domain.CapabilityTag
	BaseURL      string
	AuthHeader   string // header carrying the API key; empty means query param
	AuthParam    string // query parameter carrying the API key
	HealthPath   string
	Lookups      []IntelLookup
}

// IntelLookup maps one observable kind onto the vendor's lookup path.
// PathTemplate receives the path-escaped observable value.
type IntelLookup struct {
	Kind         string // "ip", "domain", "hash", "url"
	Description  string
	PathTemplate string
}

// VirusTotalVendor describes the VirusTotal v3 API.
func VirusTotalVendor() IntelVendor {
	return IntelVendor{
		Name:        "virustotal",
		Version:     "1.0.0",
		Description: "File, domain and IP reputation lookups against VirusTotal",
		Capabilities: []domain.CapabilityTag{
			domain.CapabilityThreatIntelligence,
			domain.CapabilityReputation,
		},
		BaseURL:    "https://www.virustotal.com",
		AuthHeader: "x-apikey",
		HealthPath: "/api/v3/ip_addresses/8.8.8.8",
		Lookups: []IntelLookup{
			{Kind: "hash", Description: "File hash reputation", PathTemplate: "/api/v3/files/%s"},
			{Kind: "domain", Description: "Domain reputation", PathTemplate: "/api/v3/domains/%s"},
			{Kind: "ip", Description: "IP address reputation", PathTemplate: "/api/v3/ip_addresses/%s"},
		},
	}
}

// ShodanVendor describes the Shodan REST API, which carries the key as a
// query parameter rather than a header.
func ShodanVendor() IntelVendor {
	return IntelVendor{
		Name:        "shodan",
		Version:     "1.0.0",
		Description: "Internet-exposure and host intelligence lookups against Shodan",
		Capabilities: []domain.CapabilityTag{
			domain.CapabilityThreatIntelligence,
			domain.CapabilityNetworkAnalysis,
		},
		BaseURL:    "https://api.shodan.io",
		AuthParam:  "key",
		HealthPath: "/api-info",
		Lookups: []IntelLookup{
			{Kind: "ip", Description: "Host information for an IP address", PathTemplate: "/shodan/host/%s"},
			{Kind: "domain", Description: "DNS and subdomain information", PathTemplate: "/dns/domain/%s"},
		},
	}
}

// AbuseIPDBVendor describes the AbuseIPDB v2 API.
func AbuseIPDBVendor() IntelVendor {
	return IntelVendor{
		Name:        "abuseipdb",
		Version:     "1.0.0",
		Description: "IP abuse-report reputation lookups against AbuseIPDB",
		Capabilities: []domain.CapabilityTag{
			domain.CapabilityReputation,
		},
		BaseURL:    "https://api.abuseipdb.com",
		AuthHeader: "Key",
		HealthPath: "/api/v2/check?ipAddress=127.0.0.1",
		Lookups: []IntelLookup{
			{Kind: "ip", Description: "Abuse confidence score for an IP address", PathTemplate: "/api/v2/check?ipAddress=%s"},
		},
	}
}

// IntelModule is one instance of the reputation-lookup family, bound to a
// vendor descriptor and an API key.
type IntelModule struct {
	lifecycle
	vendor IntelVendor
	apiKey string
	client *vendorapi.Client
}

func NewIntelModule(vendor IntelVendor, apiKey string, httpClient vendorapi.Doer) *IntelModule {
	var auth vendorapi.AuthProvider
	if vendor.AuthHeader != "" {
		auth = vendorapi.HeaderAuth{Header: vendor.AuthHeader, Value: apiKey}
	} else {
		auth = vendorapi.QueryAuth{Param: vendor.AuthParam, Value: apiKey}
	}

	client := vendorapi.NewClient(vendorapi.Profile{
		Module:     vendor.Name,
		BaseURL:    vendor.BaseURL,
		QueryStyle: vendorapi.QueryPlain,
		HealthPath: vendor.HealthPath,
		Timeout:    10 * time.Second,
	}, httpClient, auth)

	return &IntelModule{
		lifecycle: lifecycle{status: domain.StatusUninitialized},
		vendor:    vendor,
		apiKey:    apiKey,
		client:    client,
	}
}

func (m *IntelModule) Info() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:                m.vendor.Name,
		Version:             m.vendor.Version,
		Description:         m.vendor.Description,
		Capabilities:        m.vendor.Capabilities,
		RequiresCredentials: true,
		Status:              m.status,
	}
}

func (m *IntelModule) Initialize(ctx context.Context) bool {
	var missing []string
	if m.apiKey == "" {
		missing = append(missing, "api_key")
	}
	return m.gate(ctx, m.vendor.Name, missing, m.HealthCheck)
}

func (m *IntelModule) HealthCheck(ctx context.Context) domain.HealthResult {
	return m.client.Probe(ctx)
}

func (m *IntelModule) Capabilities() []domain.CapabilityDescriptor {
	return capabilities(m.vendor.Name, m.Routes())
}

func (m *IntelModule) Routes() []ports.Route {
	routes := make([]ports.Route, 0, len(m.vendor.Lookups))
	for _, lookup := range m.vendor.Lookups {
		routes = append(routes, ports.Route{
			Name:        "lookup_" + lookup.Kind,
			Description: lookup.Description,
			Method:      "GET",
			Path:        "/lookup/" + lookup.Kind + "/{value}",
			Op:          m.lookupOp(lookup),
		})
	}
	return routes
}

func (m *IntelModule) lookupOp(lookup IntelLookup) ports.Operation {
	return func(ctx context.Context, req ports.OperationRequest) (any, error) {
		value := req.Vars["value"]
		if value == "" {
			return nil, &domain.ValidationError{Message: "lookup value is required"}
		}
		return m.client.Get(ctx, fmt.Sprintf(lookup.PathTemplate, url.PathEscape(value)))
	}
}
