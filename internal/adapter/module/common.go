// Package module contains the vendor integrations. Each integration owns its
// credentials, its vendor client and (where applicable) its token cache, and
// satisfies ports.Module: a gated lifecycle, a live health probe, a static
// capability declaration and a route table.
package module

import (
	"context"
	"log"
	"strconv"

	"github.com/hive-corporation/sochub/internal/adapter/vendorapi"
	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

// lifecycle is the explicit state struct shared by all modules. Status is
// only written by Initialize; callers re-initializing a live module are
// expected to serialize those calls externally.
type lifecycle struct {
	status      domain.Status
	initialized bool
}

func (l *lifecycle) Status() domain.Status { return l.status }
func (l *lifecycle) Initialized() bool     { return l.initialized }

// gate runs the shared initialize sequence: fail fast on missing config
// without touching the network, otherwise activate on a single health probe.
func (l *lifecycle) gate(ctx context.Context, name string, missing []string, probe func(context.Context) domain.HealthResult) bool {
	l.status = domain.StatusInitializing

	if len(missing) > 0 {
		for _, field := range missing {
			err := &domain.ConfigError{Module: name, Field: field}
			log.Printf("%v", err)
		}
		l.status = domain.StatusError
		return false
	}

	health := probe(ctx)
	if health.Status != domain.HealthHealthy {
		log.Printf("%s: initialization probe failed: %s", name, health.Message)
		l.status = domain.StatusError
		return false
	}

	l.status = domain.StatusActive
	l.initialized = true
	log.Printf("%s: module initialized", name)
	return true
}

// listOptions maps the module-internal query parameters (filter/top/orderby)
// onto the vendor client options. Values pass through verbatim; the vendor
// profile decides the wire-level parameter names.
func listOptions(req ports.OperationRequest) vendorapi.ListOptions {
	opt := vendorapi.ListOptions{
		Filter:  req.Query.Get("filter"),
		OrderBy: req.Query.Get("orderby"),
	}
	if top := req.Query.Get("top"); top != "" {
		if n, err := strconv.Atoi(top); err == nil && n > 0 {
			opt.Top = n
		}
	}
	return opt
}

// capabilities derives the static capability declaration from a route table.
// Output depends only on the table, never on runtime status.
func capabilities(moduleName string, routes []ports.Route) []domain.CapabilityDescriptor {
	caps := make([]domain.CapabilityDescriptor, 0, len(routes))
	for _, rt := range routes {
		caps = append(caps, domain.CapabilityDescriptor{
			Name:        rt.Name,
			Description: rt.Description,
			Route:       "/api/v1/" + moduleName + rt.Path,
			Method:      rt.Method,
		})
	}
	return caps
}
