package conn

import (
	"context"
	"fmt"
	"sync"

	"tidebase/internal/controlplane"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EndpointState tracks the lifecycle of a resolved endpoint. Endpoints are
// replaced wholesale, never mutated in place.
type EndpointState string

const (
	StateDiscovering EndpointState = "discovering"
	StateActive      EndpointState = "active"
	StateStale       EndpointState = "stale"
)

// Endpoint is the resolved network target plus principal identity for the
// configured project/branch.
type Endpoint struct {
	Name  string
	Host  string
	User  string
	MinCU float64
	MaxCU float64
	State EndpointState

	// Static is set on the legacy/provisioned path where the host came from
	// configuration rather than discovery. Static endpoints have no endpoint
	// name to generate credentials against.
	Static bool
}

// ResolverConfig carries the identifiers and overrides consumed by Resolve.
type ResolverConfig struct {
	Project      string
	Branch       string
	HostOverride string
	UserOverride string
}

// Resolver maps the (project, branch) pair to a concrete Endpoint. The result
// is cached process-wide; concurrent callers during a miss share one discovery
// call. Invalidate drops the cache so the next Resolve re-discovers.
type Resolver struct {
	cfg ResolverConfig
	api controlplane.API

	mu     sync.RWMutex
	cached *Endpoint

	group singleflight.Group
}

func NewResolver(cfg ResolverConfig, api controlplane.API) *Resolver {
	return &Resolver{cfg: cfg, api: api}
}

// Resolve returns the current endpoint. The static host override takes
// precedence and never contacts the control plane; otherwise the first
// endpoint returned by discovery wins (ties follow discovery-service order).
func (r *Resolver) Resolve(ctx context.Context) (*Endpoint, error) {
	r.mu.RLock()
	if ep := r.cached; ep != nil {
		r.mu.RUnlock()
		return ep, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do("resolve", func() (any, error) {
		// Re-check under singleflight: a racing caller may have populated it.
		r.mu.RLock()
		if ep := r.cached; ep != nil {
			r.mu.RUnlock()
			return ep, nil
		}
		r.mu.RUnlock()

		ep, err := r.discover(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = ep
		r.mu.Unlock()
		return ep, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Endpoint), nil
}

func (r *Resolver) discover(ctx context.Context) (*Endpoint, error) {
	if r.cfg.HostOverride != "" {
		user := r.cfg.UserOverride
		if user == "" {
			u, err := r.api.WhoAmI(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCredentialIssuance, err)
			}
			user = u
		}
		logger.Info("using static host override", zap.String("host", r.cfg.HostOverride))
		return &Endpoint{
			Host:   r.cfg.HostOverride,
			User:   user,
			State:  StateActive,
			Static: true,
		}, nil
	}

	endpoints, err := r.api.ListEndpoints(ctx, r.cfg.Project, r.cfg.Branch)
	if err != nil {
		if controlplane.IsAuthError(err) {
			return nil, fmt.Errorf("%w: %v", ErrCredentialIssuance, err)
		}
		return nil, fmt.Errorf("endpoint discovery: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: project=%s branch=%s", ErrEndpointNotFound, r.cfg.Project, r.cfg.Branch)
	}

	// First endpoint wins; the control plane's ordering is the tie-break.
	discovered := endpoints[0]

	user := r.cfg.UserOverride
	if user == "" {
		u, err := r.api.WhoAmI(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialIssuance, err)
		}
		user = u
	}

	ep := &Endpoint{
		Name:  discovered.Name,
		Host:  discovered.Host,
		User:  user,
		MinCU: discovered.Spec.MinCU,
		MaxCU: discovered.Spec.MaxCU,
		State: StateActive,
	}
	logger.Info("endpoint resolved",
		zap.String("name", ep.Name),
		zap.String("host", ep.Host),
		zap.Float64("min_cu", ep.MinCU),
		zap.Float64("max_cu", ep.MaxCU))
	return ep, nil
}

// Invalidate marks the cached endpoint stale and drops it. Called by the
// ConnectionManager after an unreachable-host failure, since the endpoint may
// have moved.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// Cached returns the cached endpoint without triggering discovery, or nil.
func (r *Resolver) Cached() *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cached
}
