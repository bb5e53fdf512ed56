package ports

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/hive-corporation/sochub/internal/core/domain"
)

// Module is the contract every vendor integration satisfies.
//
// Initialize reads the module's configuration, fails fast (without touching
// the network) when a mandatory field is absent, and otherwise performs one
// health probe to gate activation. It is idempotent: repeated calls with the
// same configuration and vendor availability converge to the same state.
//
// HealthCheck always performs a real probe; results are never cached.
// Capabilities is pure and static per module type.
type Module interface {
	Info() domain.ModuleDescriptor
	Initialize(ctx context.Context) bool
	HealthCheck(ctx context.Context) domain.HealthResult
	Capabilities() []domain.CapabilityDescriptor
	Routes() []Route
}

// Operation executes one vendor-client operation. The returned payload is
// marshalled verbatim into the response envelope by the HTTP handler, which
// is also the only layer that converts the returned error into a wire status.
type Operation func(ctx context.Context, req OperationRequest) (any, error)

// OperationRequest carries the already-extracted pieces of an inbound request.
type OperationRequest struct {
	Vars  map[string]string
	Query url.Values
	Body  json.RawMessage
}

// Route binds one (method, path) pair under a module's prefix to an Operation.
// Name and Description double as the capability declaration.
type Route struct {
	Name        string
	Description string
	Method      string
	Path        string
	Op          Operation
}

// TokenSource yields a currently valid bearer token, fetching a new one only
// when the cached token has expired.
type TokenSource interface {
	Token(ctx context.Context) (domain.AccessToken, error)
}

// Snapshotter is implemented by modules whose read-only collections are worth
// caching for dashboard display. Only the snapshot collaborator calls it.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]domain.CachedRecord, error)
}

// RecordCache persists vendor records for downstream consumers. The core
// works without it.
type RecordCache interface {
	SaveBatch(ctx context.Context, records []domain.CachedRecord) error
	FindRecent(ctx context.Context, module, resource string, limit int) ([]domain.CachedRecord, error)
}
