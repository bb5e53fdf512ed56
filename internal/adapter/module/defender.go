package module

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/hive-corporation/sochub/internal/adapter/notifier"
	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
	"github.com/hive-corporation/sochub/internal/audit"
	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

const (
	defenderName    = "defender"
	defenderVersion = "1.0.0"

	defaultDefenderBaseURL = "https://api.securitycenter.microsoft.com"
	defenderScope          = "https://api.securitycenter.microsoft.com/.default"
)

// DefenderConfig holds the Microsoft Defender for Endpoint credentials.
// Built once at startup; the module never reads the environment itself.
type DefenderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string // override for tests
	TokenURL     string // override for tests
	Timeout      time.Duration
	// HuntingTimeout bounds advanced hunting queries, which routinely run
	// longer than any other call.
	HuntingTimeout time.Duration
}

// DefenderModule integrates Microsoft Defender for Endpoint: machine
// inventory and response actions, alert management, custom indicators and
// advanced hunting. Authentication is OAuth2 client credentials with a
// cached bearer token owned by this instance.
type DefenderModule struct {
	lifecycle
	cfg      DefenderConfig
	tokens   *vendorapi.ClientCredentials
	client   *vendorapi.Client
	notifier *notifier.SlackNotifier
}

func NewDefenderModule(cfg DefenderConfig, httpClient vendorapi.Doer) *DefenderModule {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDefenderBaseURL
	}
	if cfg.TokenURL == "" && cfg.TenantID != "" {
		cfg.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	}

	tokens := vendorapi.NewClientCredentials(vendorapi.ClientCredentialsConfig{
		Module:       defenderName,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        defenderScope,
		Timeout:      cfg.Timeout,
	}, httpClient)

	client := vendorapi.NewClient(vendorapi.Profile{
		Module:       defenderName,
		BaseURL:      cfg.BaseURL,
		QueryStyle:   vendorapi.QueryOData,
		ListEnvelope: "value",
		HealthPath:   "/api/machines?$top=1",
		Timeout:      cfg.Timeout,
		LongTimeout:  cfg.HuntingTimeout,
	}, httpClient, vendorapi.TokenAuth{Source: tokens})

	return &DefenderModule{
		lifecycle: lifecycle{status: domain.StatusUninitialized},
		cfg:       cfg,
		tokens:    tokens,
		client:    client,
	}
}

// SetNotifier enables Slack notifications for response actions.
func (m *DefenderModule) SetNotifier(n *notifier.SlackNotifier) { m.notifier = n }

func (m *DefenderModule) Info() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{
		Name:        defenderName,
		Version:     defenderVersion,
		Description: "Microsoft Defender for Endpoint machine, alert and indicator management",
		Capabilities: []domain.CapabilityTag{
			domain.CapabilityEDR,
			domain.CapabilityForensics,
			domain.CapabilityAutomation,
		},
		RequiresCredentials: true,
		Status:              m.status,
	}
}

func (m *DefenderModule) Initialize(ctx context.Context) bool {
	var missing []string
	if m.cfg.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if m.cfg.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if m.cfg.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	return m.gate(ctx, defenderName, missing, m.HealthCheck)
}

func (m *DefenderModule) HealthCheck(ctx context.Context) domain.HealthResult {
	return m.client.Probe(ctx)
}

func (m *DefenderModule) Capabilities() []domain.CapabilityDescriptor {
	return capabilities(defenderName, m.Routes())
}

func (m *DefenderModule) Routes() []ports.Route {
	return []ports.Route{
		{Name: "list_machines", Description: "List onboarded machines with optional filters", Method: "GET", Path: "/machines", Op: m.listMachines},
		{Name: "get_machine", Description: "Get details for a specific machine", Method: "GET", Path: "/machines/{id}", Op: m.getMachine},
		{Name: "isolate_machine", Description: "Network-isolate a machine", Method: "POST", Path: "/machines/{id}/isolate", Op: m.isolateMachine},
		{Name: "unisolate_machine", Description: "Release a machine from network isolation", Method: "POST", Path: "/machines/{id}/unisolate", Op: m.unisolateMachine},
		{Name: "restrict_app_execution", Description: "Restrict code execution on a machine", Method: "POST", Path: "/machines/{id}/restrict", Op: m.restrictAppExecution},
		{Name: "run_antivirus_scan", Description: "Start an antivirus scan on a machine", Method: "POST", Path: "/machines/{id}/scan", Op: m.runAntivirusScan},
		{Name: "get_machine_action", Description: "Poll the status of an asynchronous machine action", Method: "GET", Path: "/machineactions/{id}", Op: m.getMachineAction},
		{Name: "list_alerts", Description: "List alerts with optional filters", Method: "GET", Path: "/alerts", Op: m.listAlerts},
		{Name: "get_alert", Description: "Get details for a specific alert", Method: "GET", Path: "/alerts/{id}", Op: m.getAlert},
		{Name: "update_alert", Description: "Update alert status, classification or assignee", Method: "PATCH", Path: "/alerts/{id}", Op: m.updateAlert},
		{Name: "list_indicators", Description: "List custom threat indicators", Method: "GET", Path: "/indicators", Op: m.listIndicators},
		{Name: "add_indicator", Description: "Submit a custom threat indicator", Method: "POST", Path: "/indicators", Op: m.addIndicator},
		{Name: "advanced_hunting", Description: "Run an advanced hunting query", Method: "POST", Path: "/hunting/query", Op: m.advancedHunting},
	}
}

// Machine inventory and response actions

func (m *DefenderModule) listMachines(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.List(ctx, "/api/machines", listOptions(req))
}

func (m *DefenderModule) getMachine(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.Get(ctx, "/api/machines/"+url.PathEscape(req.Vars["id"]))
}

type isolateRequest struct {
	IsolationType string `json:"isolationType,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

func (m *DefenderModule) isolateMachine(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body isolateRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.IsolationType == "" {
		return nil, &domain.ValidationError{Message: "isolationType is required"}
	}

	id := req.Vars["id"]
	ack, err := m.client.Post(ctx, "/api/machines/"+url.PathEscape(id)+"/isolate", body)
	m.recordAction("isolate_machine", id, body.Comment, err)
	return ack, err
}

type commentRequest struct {
	Comment string `json:"comment,omitempty"`
}

func (m *DefenderModule) unisolateMachine(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body commentRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}

	id := req.Vars["id"]
	ack, err := m.client.Post(ctx, "/api/machines/"+url.PathEscape(id)+"/unisolate", body)
	m.recordAction("unisolate_machine", id, body.Comment, err)
	return ack, err
}

func (m *DefenderModule) restrictAppExecution(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body commentRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}

	id := req.Vars["id"]
	ack, err := m.client.Post(ctx, "/api/machines/"+url.PathEscape(id)+"/restrictCodeExecution", body)
	m.recordAction("restrict_app_execution", id, body.Comment, err)
	return ack, err
}

type scanRequest struct {
	ScanType string `json:"scanType,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

func (m *DefenderModule) runAntivirusScan(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body scanRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.ScanType == "" {
		body.ScanType = "Quick"
	}

	id := req.Vars["id"]
	ack, err := m.client.Post(ctx, "/api/machines/"+url.PathEscape(id)+"/runAntiVirusScan", body)
	m.recordAction("run_antivirus_scan", id, body.Comment, err)
	return ack, err
}

func (m *DefenderModule) getMachineAction(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.Get(ctx, "/api/machineactions/"+url.PathEscape(req.Vars["id"]))
}

// Alert management

func (m *DefenderModule) listAlerts(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.List(ctx, "/api/alerts", listOptions(req))
}

func (m *DefenderModule) getAlert(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.Get(ctx, "/api/alerts/"+url.PathEscape(req.Vars["id"]))
}

// updateAlertRequest mirrors the subset of alert fields the dashboard may
// change. Unset fields are omitted from the outbound body; the vendor must
// never receive null for an absent optional field.
type updateAlertRequest struct {
	Status         string `json:"status,omitempty"`
	Classification string `json:"classification,omitempty"`
	Determination  string `json:"determination,omitempty"`
	AssignedTo     string `json:"assignedTo,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

func (m *DefenderModule) updateAlert(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body updateAlertRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body == (updateAlertRequest{}) {
		return nil, &domain.ValidationError{Message: "no updatable alert fields in request body"}
	}

	id := req.Vars["id"]
	ack, err := m.client.Patch(ctx, "/api/alerts/"+url.PathEscape(id), body)
	m.recordAction("update_alert", id, body.Comment, err)
	return ack, err
}

// Indicators

func (m *DefenderModule) listIndicators(ctx context.Context, req ports.OperationRequest) (any, error) {
	return m.client.List(ctx, "/api/indicators", listOptions(req))
}

type indicatorRequest struct {
	IndicatorValue string `json:"indicatorValue,omitempty"`
	IndicatorType  string `json:"indicatorType,omitempty"`
	Action         string `json:"action,omitempty"`
	Title          string `json:"title,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Description    string `json:"description,omitempty"`
	ExpirationTime string `json:"expirationTime,omitempty"`
}

func (m *DefenderModule) addIndicator(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body indicatorRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.IndicatorValue == "" || body.IndicatorType == "" || body.Action == "" {
		return nil, &domain.ValidationError{Message: "indicatorValue, indicatorType and action are required"}
	}

	ack, err := m.client.Post(ctx, "/api/indicators", body)
	m.recordAction("add_indicator", body.IndicatorValue, body.Title, err)
	return ack, err
}

// Advanced hunting

func (m *DefenderModule) advancedHunting(ctx context.Context, req ports.OperationRequest) (any, error) {
	var body struct {
		Query string `json:"query"`
	}
	if err := decodeBody(req.Body, &body); err != nil {
		return nil, err
	}
	if body.Query == "" {
		return nil, &domain.ValidationError{Message: "query is required"}
	}

	// Hunting queries get the long timeout; the wire field is capitalized.
	return m.client.PostLong(ctx, "/api/advancedqueries/run", map[string]string{"Query": body.Query})
}

// Snapshot collects the machine and alert inventories for the cache store.
func (m *DefenderModule) Snapshot(ctx context.Context) ([]domain.CachedRecord, error) {
	var records []domain.CachedRecord

	machines, err := m.client.List(ctx, "/api/machines", vendorapi.ListOptions{})
	if err != nil {
		return nil, err
	}
	records = append(records, toCachedRecords(defenderName, "machines", "id", machines)...)

	alerts, err := m.client.List(ctx, "/api/alerts", vendorapi.ListOptions{})
	if err != nil {
		return nil, err
	}
	records = append(records, toCachedRecords(defenderName, "alerts", "id", alerts)...)

	return records, nil
}

func (m *DefenderModule) recordAction(operation, target, comment string, err error) {
	actionID := audit.Action(defenderName, operation, target, err)

	if m.notifier == nil {
		return
	}
	action := notifier.ResponseAction{
		ActionID:  actionID,
		Module:    defenderName,
		Operation: operation,
		Target:    target,
		Comment:   comment,
		Success:   err == nil,
	}
	if err != nil {
		action.Error = err.Error()
	}
	if nerr := m.notifier.NotifyResponseAction(action); nerr != nil {
		log.Printf("%s: failed to send response-action notification: %v", defenderName, nerr)
	}
}

// decodeBody parses an operation body, treating an empty body as an empty
// object so optional-field requests need no payload.
func decodeBody(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &domain.ValidationError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// toCachedRecords extracts the record id field from each payload.
func toCachedRecords(moduleName, resource, idField string, items []json.RawMessage) []domain.CachedRecord {
	now := time.Now()
	records := make([]domain.CachedRecord, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			continue
		}
		var id string
		if err := json.Unmarshal(fields[idField], &id); err != nil || id == "" {
			continue
		}
		records = append(records, domain.CachedRecord{
			Module:    moduleName,
			Resource:  resource,
			RecordID:  id,
			Payload:   item,
			FetchedAt: now,
		})
	}
	return records
}
