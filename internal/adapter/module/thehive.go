package module

import (
	"context"
	"net/url"
	"time"

	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
	"github.com/hive-corporation/sochub/internal/audit"
	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

const (
	theHiveName    = "thehive"
	theHiveVersion = "1.0.0"
)

// TheHiveConfig holds the TheHive connection settings. The API key is a
// static bearer credential; no token exchange is involved.
type TheHiveConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// TheHiveModule integrates TheHive for case and alert handling: case
// management, observables, tasks and alert promotion.
type TheHiveModule struct {
	lifecycle
	cfg    TheHiveConfig
	client *vendorapi.Client
}

func NewTheHiveModule(cfg TheHiveConfig, httpClient vendorapi.Doer) *TheHiveModule {
	client := vendorapi.NewClient(vendorapi.Profile{
		Module:     theHiveName,
		BaseURL:    cfg.APIURL,
		QueryStyle: vendorapi.QueryPlain,
		HealthPath: "/api/v1/user/current",
		Timeout:    cfg.Timeout,
	}, httpClient, vendorapi.HeaderAuth{Header: "Authorization", Value: "Bearer " + cfg.APIKey})

	return &TheHiveModule{
		lifecycle: lifecycle{status: domain.StatusUninitialized},
		cfg:       cfg,
		client:    client,
	}
}

func (m *TheHiveModule) Info() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:        theHiveName,
		Version:     theHiveVersion,
		Description: "Incident management and case handling integration with TheHive",
		Capabilities: []domain.CapabilityTag{
			domain.CapabilityIncidentManagement,
			domain.CapabilityAutomation,
		},
		RequiresCredentials: true,
		Status:              m.status,
	}
}

func (m *TheHiveModule) Initialize(ctx context.Context) bool {
	var missing []string
	if m.cfg.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if m.cfg.APIKey == "" {
		missing = append(missing, "api_key")
	}
	return m.gate(ctx, theHiveName, missing, m.HealthCheck)
}

func (m *TheHiveModule) HealthCheck(ctx context.Context) domain.HealthResult {
	return m.client.Probe(ctx)
}

func (m *TheHiveModule) Capabilities() []domain.CapabilityDescriptor {
	return capabilities(theHiveName, m.Routes())
}

func (m *TheHiveModule) Routes() []ports.Route {
	return []ports.Route{
		{Name: "list_cases", Description: "List cases with optional filters", Method: "GET", Path: "/cases", Op: m.listCases},
		{Name: "get_case", Description: "Get details for a specific case", Method: "GET", Path: "/cases/{id}", Op: m.getCase},
		{Name: "create_case", Description: "Create a new case", Method: "POST", Path: "/cases", Op: m.createCase},
		{Name: "update_case", Description: "Update fields of an existing case", Method: "PATCH", Path: "/cases/{id}", Op: m.updateCase},
		{Name: "close_case", Description: "Close a case with a resolution", Method: "POST", Path: "/cases/{id}/close", Op: m.closeCase},
		{Name: "add_observable", Description: "Add an observable to a case", Method: "POST", Path: "/cases/{id}/observables", Op: m.addObservable},
		{Name: "create_task", Description: "Create a task in a case", Method: "POST", Path: "/cases/{id}/tasks", Op: m.createTask},
		{Name: "list_alerts", Description: "List alerts with optional filters", Method: "GET", Path: "/alerts", Op: m.listAlerts},
		{Name: "promote_alert", Description: "Promote an alert to a case", Method: "POST", Path: "/alerts/{id}/promote", Op: m.promoteAlert},
	}
}

// Case management

func (m *TheHiveModule) listCases(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.List(ctx, "/api/case", listOptions(req))
}

func (m *TheHiveModule) getCase(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.Get(ctx, "/api/case/"+url.PathEscape(req.Vars["id"]))
}

type createCaseRequest struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Severity    int      `json:"severity,omitempty"`
	TLP         int      `json:"tlp,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (m *TheHiveModule) createCase(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body createCaseRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.Title == "" || body.Description == "" {
		return nil, &domain.ValidationError{Message: "title and description are required"}
	}

	created, err := m.client.Post(ctx, "/api/case", body)
	audit.Action(theHiveName, "create_case", body.Title, err)
	return created, err
}

type updateCaseRequest struct {
	Title            string   `json:"title,omitempty"`
	Description      string   `json:"description,omitempty"`
	Severity         int      `json:"severity,omitempty"`
	TLP              int      `json:"tlp,omitempty"`
	Status           string   `json:"status,omitempty"`
	ResolutionStatus string   `json:"resolutionStatus,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

func (m *TheHiveModule) updateCase(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body updateCaseRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}

	id := req.Vars["id"]
	updated, err := m.client.Patch(ctx, "/api/case/"+url.PathEscape(id), body)
	audit.Action(theHiveName, "update_case", id, err)
	return updated, err
}

type closeCaseRequest struct {
	ResolutionStatus string `json:"resolutionStatus,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

// closeCase is an update with status Resolved; TheHive has no dedicated
// close endpoint.
func (m *TheHiveModule) closeCase(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body closeCaseRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.ResolutionStatus == "" {
		body.ResolutionStatus = "TruePositive"
	}

	id := req.Vars["id"]
	closed, err := m.client.Patch(ctx, "/api/case/"+url.PathEscape(id), updateCaseRequest{
		Status:           "Resolved",
		ResolutionStatus: body.ResolutionStatus,
		Summary:          body.Summary,
	})
	audit.Action(theHiveName, "close_case", id, err)
	return closed, err
}

// Observables and tasks

type observableRequest struct {
	DataType string   `json:"dataType,omitempty"`
	Data     string   `json:"data,omitempty"`
	TLP      int      `json:"tlp,omitempty"`
	IOC      bool     `json:"ioc,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Message  string   `json:"message,omitempty"`
}

func (m *TheHiveModule) addObservable(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body observableRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.DataType == "" || body.Data == "" {
		return nil, &domain.ValidationError{Message: "dataType and data are required"}
	}

	id := req.Vars["id"]
	created, err := m.client.Post(ctx, "/api/case/"+url.PathEscape(id)+"/artifact", body)
	audit.Action(theHiveName, "add_observable", id, err)
	return created, err
}

type taskRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (m *TheHiveModule) createTask(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body taskRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.Title == "" {
		return nil, &domain.ValidationError{Message: "title is required"}
	}

	id := req.Vars["id"]
	created, err := m.client.Post(ctx, "/api/case/"+url.PathEscape(id)+"/task", body)
	audit.Action(theHiveName, "create_task", id, err)
	return created, err
}

// Alerts

func (m *TheHiveModule) listAlerts(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.List(ctx, "/api/alert", listOptions(req))
}

func (m *TheHiveModule) promoteAlert(ctx context.Context, req ports.OperationRequest) (any, error) {
	id := req.Vars["id"]
	promoted, err := m.client.Post(ctx, "/api/alert/"+url.PathEscape(id)+"/createCase", nil)
	audit.Action(theHiveName, "promote_alert", id, err)
	return promoted, err
}

// Snapshot collects the case and alert lists for the cache store.
func (m *TheHiveModule) Snapshot(ctx context.Context) ([]domain.CachedRecord, error) {
	var records []domain.CachedRecord

	cases, err := m.client.List(ctx, "/api/case", vendorapi.ListOptions{Top: 100, OrderBy: "-startDate"})
	if err != nil {
		return nil, err
	}
	records = append(records, toCachedRecords(theHiveName, "cases", "_id", cases)...)

	alerts, err := m.client.List(ctx, "/api/alert", vendorapi.ListOptions{Top: 100, OrderBy: "-date"})
	if err != nil {
		return nil, err
	}
	records = append(records, toCachedRecords(theHiveName, "alerts", "_id", alerts)...)

	return records, nil
}
