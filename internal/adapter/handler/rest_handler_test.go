package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
	"github.com/hive-corporation/sochub/internal/registry"
)

type stubModule struct {
	name   string
	health domain.HealthState // empty means healthy
	routes []ports.Route
}

func (s *stubModule) Info() domain.ModuleDescriptor {
	return domain.ModuleDescriptor{Name: s.name, Version: "1.0.0", Status: domain.StatusActive}
}
func (s *stubModule) Initialize(_ context.Context) bool { return true }
func (s *stubModule) HealthCheck(_ context.Context) domain.HealthResult {
	if s.health != "" && s.health != domain.HealthHealthy {
		return domain.HealthResult{Status: s.health, Message: s.name + " unreachable"}
	}
	return domain.HealthResult{Status: domain.HealthHealthy, Message: "connected to " + s.name}
}
func (s *stubModule) Capabilities() []domain.CapabilityDescriptor {
	caps := make([]domain.CapabilityDescriptor, 0, len(s.routes))
	for _, rt := range s.routes {
		caps = append(caps, domain.CapabilityDescriptor{Name: rt.Name, Route: "/api/v1/" + s.name + rt.Path, Method: rt.Method})
	}
	return caps
}
func (s *stubModule) Routes() []ports.Route { return s.routes }

func testServer(t *testing.T, modules ...ports.Module) *httptest.Server {
	t.Helper()
	reg := registry.New()
	for _, m := range modules {
		reg.Register(m)
	}
	router := mux.NewRouter()
	NewRestHandler(reg, "test").Mount(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("response is not a JSON object: %v (%s)", err, body)
	}
	return resp.StatusCode, decoded
}

func TestUnknownRouteReturnsErrorEnvelope(t *testing.T) {
	srv := testServer(t)

	status, body := getJSON(t, srv.URL+"/api/v1/definitely/not/here")
	if status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if body["error"] != "Not found" {
		t.Errorf(`expected {"error":"Not found"}, got %v`, body)
	}
}

func TestWrongMethodReturnsErrorEnvelope(t *testing.T) {
	m := &stubModule{name: "edr", routes: []ports.Route{
		{Name: "list_items", Method: "GET", Path: "/items", Op: func(_ context.Context, _ ports.OperationRequest) (any, error) {
			return []string{}, nil
		}},
	}}
	srv := testServer(t, m)

	resp, err := http.Post(srv.URL+"/api/v1/edr/items", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for a wrong method, got %d", resp.StatusCode)
	}
}

func TestOperationReceivesVarsQueryAndBody(t *testing.T) {
	var got ports.OperationRequest
	m := &stubModule{name: "edr", routes: []ports.Route{
		{Name: "act", Method: "POST", Path: "/machines/{id}/isolate", Op: func(_ context.Context, req ports.OperationRequest) (any, error) {
			got = req
			return map[string]string{"id": "action-1"}, nil
		}},
	}}
	srv := testServer(t, m)

	resp, err := http.Post(srv.URL+"/api/v1/edr/machines/abc123/isolate?dry=1", "application/json", strings.NewReader(`{"isolationType":"Full"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if got.Vars["id"] != "abc123" {
		t.Errorf("path variable not passed through: %v", got.Vars)
	}
	if got.Query.Get("dry") != "1" {
		t.Errorf("query not passed through: %v", got.Query)
	}
	if !strings.Contains(string(got.Body), "isolationType") {
		t.Errorf("body not passed through: %s", got.Body)
	}
}

func TestValidationErrorMapsTo400(t *testing.T) {
	m := &stubModule{name: "edr", routes: []ports.Route{
		{Name: "act", Method: "POST", Path: "/machines/{id}/isolate", Op: func(_ context.Context, _ ports.OperationRequest) (any, error) {
			return nil, &domain.ValidationError{Message: "isolationType is required"}
		}},
	}}
	srv := testServer(t, m)

	resp, err := http.Post(srv.URL+"/api/v1/edr/machines/m1/isolate", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "isolationType is required") {
		t.Errorf("expected the validation message in the envelope, got %s", body)
	}
}

func TestVendorErrorMapsTo500(t *testing.T) {
	m := &stubModule{name: "edr", routes: []ports.Route{
		{Name: "get", Method: "GET", Path: "/items/{id}", Op: func(_ context.Context, _ ports.OperationRequest) (any, error) {
			return nil, &domain.VendorAPIError{Module: "edr", StatusCode: 502, Message: "upstream exploded"}
		}},
	}}
	srv := testServer(t, m)

	status, body := getJSON(t, srv.URL+"/api/v1/edr/items/x")
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "upstream exploded") {
		t.Errorf("expected the vendor detail in the envelope, got %v", body)
	}
}

func TestPanicInOperationMapsTo500(t *testing.T) {
	m := &stubModule{name: "edr", routes: []ports.Route{
		{Name: "boom", Method: "GET", Path: "/boom", Op: func(_ context.Context, _ ports.OperationRequest) (any, error) {
			panic("unexpected state")
		}},
	}}
	srv := testServer(t, m)

	status, body := getJSON(t, srv.URL+"/api/v1/edr/boom")
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	if body["error"] == nil {
		t.Errorf("expected an error envelope, got %v", body)
	}
}

func TestAggregateEndpoints(t *testing.T) {
	edr := &stubModule{name: "edr"}
	hive := &stubModule{name: "hive"}
	srv := testServer(t, edr, hive)

	t.Run("health", func(t *testing.T) {
		status, body := getJSON(t, srv.URL+"/api/v1/health")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body["modules_loaded"] != float64(2) {
			t.Errorf("expected 2 modules loaded, got %v", body["modules_loaded"])
		}
	})

	t.Run("module list", func(t *testing.T) {
		status, body := getJSON(t, srv.URL+"/api/v1/modules")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body["total"] != float64(2) {
			t.Errorf("expected total 2, got %v", body["total"])
		}
	})

	t.Run("module detail", func(t *testing.T) {
		status, body := getJSON(t, srv.URL+"/api/v1/modules/edr")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body["info"] == nil || body["health"] == nil {
			t.Errorf("expected info and health sections, got %v", body)
		}
	})

	t.Run("unknown module", func(t *testing.T) {
		status, body := getJSON(t, srv.URL+"/api/v1/modules/nope")
		if status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", status)
		}
		if body["error"] != "Module nope not found" {
			t.Errorf("unexpected envelope: %v", body)
		}
	})
}

func TestModuleSurfaceEndpoints(t *testing.T) {
	m := &stubModule{name: "edr", routes: []ports.Route{
		{Name: "list_items", Method: "GET", Path: "/items", Op: func(_ context.Context, _ ports.OperationRequest) (any, error) {
			return []json.RawMessage{}, nil
		}},
	}}
	srv := testServer(t, m)

	t.Run("descriptor", func(t *testing.T) {
		status, body := getJSON(t, srv.URL+"/api/v1/edr")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body["name"] != "edr" {
			t.Errorf("unexpected descriptor: %v", body)
		}
	})

	t.Run("health", func(t *testing.T) {
		status, body := getJSON(t, srv.URL+"/api/v1/edr/health")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body["status"] != string(domain.HealthHealthy) {
			t.Errorf("unexpected health: %v", body)
		}
	})

	t.Run("empty list stays an array", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/edr/items")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if strings.TrimSpace(string(body)) != "[]" {
			t.Errorf("expected an empty JSON array, got %s", body)
		}
	})
}
