package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
	"github.com/hive-corporation/sochub/internal/registry"
)

// maxBodyBytes bounds inbound operation bodies.
const maxBodyBytes = 1 << 20

// RestHandler exposes the module surface over HTTP. It is the single
// boundary where typed module errors are downgraded to wire status codes:
// unmatched routes become 404, malformed input 400, everything else 500 with
// the error message in the envelope.
type RestHandler struct {
	registry *registry.Registry
	version  string
}

func NewRestHandler(reg *registry.Registry, version string) *RestHandler {
	return &RestHandler{registry: reg, version: version}
}

// Mount registers every route on the router: the aggregate endpoints, one
// block of routes per module, and the 404 envelope for everything else.
func (h *RestHandler) Mount(router *mux.Router) {
	router.HandleFunc("/", h.Root).Methods("GET")
	router.HandleFunc("/api/v1/health", h.SystemHealth).Methods("GET")
	router.HandleFunc("/api/v1/modules", h.ListModules).Methods("GET")
	router.HandleFunc("/api/v1/modules/{name}", h.GetModule).Methods("GET")
	router.HandleFunc("/api/v1/modules/{name}/capabilities", h.GetModuleCapabilities).Methods("GET")

	for _, m := range h.registry.All() {
		h.mountModule(router, m)
	}

	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.NotFound)
}

func (h *RestHandler) mountModule(router *mux.Router, m ports.Module) {
	name := m.Info().Name
	base := "/api/v1/" + name

	router.HandleFunc(base, h.moduleInfo(m)).Methods("GET")
	router.HandleFunc(base+"/health", h.moduleHealth(m)).Methods("GET")
	router.HandleFunc(base+"/capabilities", h.moduleCapabilities(m)).Methods("GET")

	for _, rt := range m.Routes() {
		router.HandleFunc(base+rt.Path, h.operation(rt)).Methods(rt.Method)
	}
}

// Root describes the service itself.
func (h *RestHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "SOC Hub",
		"version": h.version,
		"status":  "operational",
		"modules": h.registry.Names(),
	})
}

// SystemHealth probes every module and reports the aggregate.
func (h *RestHandler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	results := h.registry.HealthAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"modules_loaded": len(results),
		"modules":        results,
	})
}

// ListModules returns every module descriptor without touching any vendor.
func (h *RestHandler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules := h.registry.All()
	descriptors := make([]domain.ModuleDescriptor, 0, len(modules))
	for _, m := range modules {
		descriptors = append(descriptors, m.Info())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(descriptors),
		"modules": descriptors,
	})
}

// GetModule returns descriptor, capabilities and a fresh health probe for
// one module.
func (h *RestHandler) GetModule(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m, ok := h.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Module %s not found", name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"info":         m.Info(),
		"capabilities": m.Capabilities(),
		"health":       m.HealthCheck(r.Context()),
	})
}

func (h *RestHandler) GetModuleCapabilities(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m, ok := h.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Module %s not found", name))
		return
	}
	writeJSON(w, http.StatusOK, m.Capabilities())
}

// NotFound is the envelope for unmatched (method, path) combinations.
func (h *RestHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func (h *RestHandler) moduleInfo(m ports.Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Info())
	}
}

func (h *RestHandler) moduleHealth(m ports.Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.HealthCheck(r.Context()))
	}
}

func (h *RestHandler) moduleCapabilities(m ports.Module) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Capabilities())
	}
}

// operation adapts one module route. Any error or panic escaping the
// operation is converted to a wire status here and nowhere else.
func (h *RestHandler) operation(rt ports.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic in operation %s: %v", rt.Name, rec)
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", rec))
			}
		}()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		payload, err := rt.Op(r.Context(), ports.OperationRequest{
			Vars:  mux.Vars(r),
			Query: r.URL.Query(),
			Body:  body,
		})
		if err != nil {
			writeOperationError(w, err)
			return
		}

		// Mutations with an empty vendor acknowledgement still get a JSON body.
		if raw, ok := payload.(json.RawMessage); ok && len(raw) == 0 {
			payload = map[string]any{}
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func writeOperationError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Message)
		return
	}
	// AuthError, VendorAPIError, TimeoutError and anything unexpected all
	// surface as 500; the message keeps the diagnostic detail.
	writeError(w, http.StatusInternalServerError, err.Error())
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
