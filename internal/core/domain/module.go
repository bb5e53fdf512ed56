package domain

import "time"

// Status is the lifecycle state of an integration module.
// Uninitialized -> Initializing -> Active | Error. Re-entering Initializing
// requires a fresh Initialize call; there is no other transition.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusActive        Status = "active"
	StatusError         Status = "error"
)

// CapabilityTag is a coarse category label used for discovery, not authorization.
type CapabilityTag string

const (
	CapabilityEDR                CapabilityTag = "edr"
	CapabilityIncidentManagement CapabilityTag = "incident_management"
	CapabilityThreatIntelligence CapabilityTag = "threat_intelligence"
	CapabilityReputation         CapabilityTag = "reputation"
	CapabilityNetworkAnalysis    CapabilityTag = "network_analysis"
	CapabilityForensics          CapabilityTag = "forensics"
	CapabilityAutomation         CapabilityTag = "automation"
)

// ModuleDescriptor is the self-description of one vendor integration.
// Everything except Status is fixed at construction.
type ModuleDescriptor struct {
	Name                string          `json:"name"`
	Version             string          `json:"version"`
	Description         string          `json:"description"`
	Capabilities        []CapabilityTag `json:"capabilities"`
	RequiresCredentials bool            `json:"requires_credentials"`
	Status              Status          `json:"status"`
}

// CapabilityDescriptor declares one operation a module exposes. Static per
// module type, independent of runtime state.
type CapabilityDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Route       string `json:"route"`
	Method      string `json:"method"`
}

type HealthState string

const (
	HealthHealthy   HealthState = "healthy"   // probe succeeded
	HealthUnhealthy HealthState = "unhealthy" // vendor reachable, non-success status
	HealthError     HealthState = "error"     // probe could not be completed
)

// HealthResult is computed fresh on every health check, never cached.
type HealthResult struct {
	Status  HealthState       `json:"status"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

// AccessToken is a bearer credential owned by exactly one module instance.
// It must never be used past ExpiresAt (which already includes the safety
// margin subtracted from the vendor's expires_in).
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be attached to a request at time now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// CachedRecord is one vendor record persisted by the snapshot collaborator.
// The core never reads these back; they exist for dashboard display.
type CachedRecord struct {
	Module    string
	Resource  string
	RecordID  string
	Payload   []byte
	FetchedAt time.Time
}
