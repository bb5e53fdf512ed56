package module

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// capturedRequest records what the fake vendor saw for one call.
type capturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// fakeDefender serves both the token endpoint and the Defender API surface.
func fakeDefender(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		respond(w, r)
	}))
	return srv, &captured
}

func testDefender(srvURL string) *DefenderModule {
	return NewDefenderModule(DefenderConfig{
		TenantID:     "tenant-1",
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		BaseURL:      srvURL,
		TokenURL:     srvURL + "/token",
	}, nil)
}

func findRoute(t *testing.T, m ports.Module, name string) ports.Route {
	t.Helper()
	for _, rt := range m.Routes() {
		if rt.Name == name {
			return rt
		}
	}
	t.Fatalf("route %q not found", name)
	return ports.Route{}
}

func TestDefenderMissingConfigFailsWithoutNetwork(t *testing.T) {
	transport := doerFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("no network call expected for an unconfigured module")
		return nil, nil
	})
	m := NewDefenderModule(DefenderConfig{TenantID: "tenant-1"}, transport)

	if m.Initialize(context.Background()) {
		t.Fatal("expected initialization to fail")
	}
	if m.Status() != domain.StatusError {
		t.Errorf("expected error status, got %s", m.Status())
	}
	if m.Info().Status != domain.StatusError {
		t.Errorf("descriptor should carry the error status, got %s", m.Info().Status)
	}
}

func TestDefenderInitializeActivates(t *testing.T) {
	srv, _ := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[]}`))
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	if !m.Initialize(context.Background()) {
		t.Fatal("expected initialization to succeed")
	}
	if m.Status() != domain.StatusActive {
		t.Errorf("expected active status, got %s", m.Status())
	}
	if !m.Initialized() {
		t.Error("expected initialized flag")
	}

	// Re-initializing with the same config and a reachable vendor converges
	// to the same state.
	if !m.Initialize(context.Background()) {
		t.Error("repeated initialization should succeed")
	}
	if m.Status() != domain.StatusActive {
		t.Errorf("expected active status after re-init, got %s", m.Status())
	}
}

func TestDefenderListMachinesQueryAndAuth(t *testing.T) {
	srv, captured := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{"id":"m1"}]}`))
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	op := findRoute(t, m, "list_machines").Op

	_, err := op(context.Background(), ports.OperationRequest{
		Query: url.Values{"top": {"10"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := (*captured)[len(*captured)-1]
	if last.Path != "/api/machines" {
		t.Errorf("unexpected path %q", last.Path)
	}
	if last.Query.Get("$top") != "10" {
		t.Errorf("expected $top=10, got %v", last.Query)
	}
	if _, present := last.Query["$filter"]; present {
		t.Errorf("$filter must be absent when no filter given: %v", last.Query)
	}
	if last.Header.Get("Authorization") != "Bearer tok-1" {
		t.Errorf("expected bearer token, got %q", last.Header.Get("Authorization"))
	}
}

func TestDefenderIsolateRequiresIsolationType(t *testing.T) {
	srv, captured := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	op := findRoute(t, m, "isolate_machine").Op

	_, err := op(context.Background(), ports.OperationRequest{
		Vars: map[string]string{"id": "m1"},
		Body: json.RawMessage(`{"comment":"no type"}`),
	})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(*captured) != 0 {
		t.Error("rejected request must not reach the vendor")
	}
}

func TestDefenderIsolatePostsAction(t *testing.T) {
	srv, captured := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"action-1","type":"Isolate"}`))
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	op := findRoute(t, m, "isolate_machine").Op

	ack, err := op(context.Background(), ports.OperationRequest{
		Vars: map[string]string{"id": "m1"},
		Body: json.RawMessage(`{"isolationType":"Full","comment":"compromised host"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack == nil {
		t.Fatal("expected the vendor acknowledgement to pass through")
	}

	last := (*captured)[len(*captured)-1]
	if last.Method != http.MethodPost || last.Path != "/api/machines/m1/isolate" {
		t.Errorf("unexpected call %s %s", last.Method, last.Path)
	}

	var sent map[string]string
	if err := json.Unmarshal(last.Body, &sent); err != nil {
		t.Fatalf("vendor body not JSON: %v", err)
	}
	if sent["isolationType"] != "Full" {
		t.Errorf("isolationType not forwarded: %v", sent)
	}
}

func TestDefenderUpdateAlertOmitsUnsetFields(t *testing.T) {
	srv, captured := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"a1","status":"Resolved"}`))
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	op := findRoute(t, m, "update_alert").Op

	_, err := op(context.Background(), ports.OperationRequest{
		Vars: map[string]string{"id": "a1"},
		Body: json.RawMessage(`{"status":"Resolved"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := (*captured)[len(*captured)-1]
	if last.Method != http.MethodPatch {
		t.Errorf("expected PATCH, got %s", last.Method)
	}

	var sent map[string]any
	if err := json.Unmarshal(last.Body, &sent); err != nil {
		t.Fatalf("vendor body not JSON: %v", err)
	}
	if len(sent) != 1 || sent["status"] != "Resolved" {
		t.Errorf("unset fields must be omitted entirely, got %v", sent)
	}
}

func TestDefenderUpdateAlertRejectsEmptyBody(t *testing.T) {
	srv, captured := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	m := testDefender(srv.URL)
	op := findRoute(t, m, "update_alert").Op

	_, err := op(context.Background(), ports.OperationRequest{
		Vars: map[string]string{"id": "a1"},
		Body: json.RawMessage(`{}`),
	})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(*captured) != 0 {
		t.Error("empty update must not reach the vendor")
	}
}

func TestDefenderHuntingQueryFieldIsCapitalized(t *testing.T) {
	srv, captured := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Results":[]}`))
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	op := findRoute(t, m, "advanced_hunting").Op

	_, err := op(context.Background(), ports.OperationRequest{
		Body: json.RawMessage(`{"query":"DeviceEvents | take 1"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := (*captured)[len(*captured)-1]
	if last.Path != "/api/advancedqueries/run" {
		t.Errorf("unexpected path %q", last.Path)
	}

	var sent map[string]string
	if err := json.Unmarshal(last.Body, &sent); err != nil {
		t.Fatalf("vendor body not JSON: %v", err)
	}
	if sent["Query"] != "DeviceEvents | take 1" {
		t.Errorf(`expected capitalized "Query" wire field, got %v`, sent)
	}
}

func TestDefenderCapabilitiesAreStatusIndependent(t *testing.T) {
	m := NewDefenderModule(DefenderConfig{}, doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("unreachable")
	}))

	before := m.Capabilities()
	m.Initialize(context.Background())
	after := m.Capabilities()

	if len(before) == 0 {
		t.Fatal("expected a non-empty capability table")
	}
	if len(before) != len(after) {
		t.Fatalf("capability table changed with status: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("capability %d changed with status: %+v vs %+v", i, before[i], after[i])
		}
	}
	if before[0].Route != "/api/v1/defender/machines" {
		t.Errorf("unexpected capability route %q", before[0].Route)
	}
}

func TestDefenderSnapshot(t *testing.T) {
	srv, _ := fakeDefender(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/machines":
			w.Write([]byte(`{"value":[{"id":"m1"},{"id":"m2"}]}`))
		case "/api/alerts":
			w.Write([]byte(`{"value":[{"id":"a1"}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	defer srv.Close()

	m := testDefender(srv.URL)
	records, err := m.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	byResource := map[string]int{}
	for _, rec := range records {
		if rec.Module != "defender" {
			t.Errorf("unexpected module %q", rec.Module)
		}
		if rec.RecordID == "" {
			t.Error("record id must be extracted from the payload")
		}
		byResource[rec.Resource]++
	}
	if byResource["machines"] != 2 || byResource["alerts"] != 1 {
		t.Errorf("unexpected resource split: %v", byResource)
	}
}
