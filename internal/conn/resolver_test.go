package conn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"tidebase/internal/controlplane"
	"tidebase/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

type fakeAPI struct {
	listEndpoints      func(ctx context.Context, project, branch string) ([]controlplane.Endpoint, error)
	generateCredential func(ctx context.Context, endpointName string) (controlplane.Credential, error)
	workspaceToken     func(ctx context.Context) (controlplane.Credential, error)
	whoAmI             func(ctx context.Context) (string, error)

	listCalls int32
}

func (f *fakeAPI) ListEndpoints(ctx context.Context, project, branch string) ([]controlplane.Endpoint, error) {
	atomic.AddInt32(&f.listCalls, 1)
	if f.listEndpoints == nil {
		return nil, errors.New("ListEndpoints not stubbed")
	}
	return f.listEndpoints(ctx, project, branch)
}

func (f *fakeAPI) GenerateCredential(ctx context.Context, endpointName string) (controlplane.Credential, error) {
	if f.generateCredential == nil {
		return controlplane.Credential{}, errors.New("GenerateCredential not stubbed")
	}
	return f.generateCredential(ctx, endpointName)
}

func (f *fakeAPI) WorkspaceToken(ctx context.Context) (controlplane.Credential, error) {
	if f.workspaceToken == nil {
		return controlplane.Credential{}, errors.New("WorkspaceToken not stubbed")
	}
	return f.workspaceToken(ctx)
}

func (f *fakeAPI) WhoAmI(ctx context.Context) (string, error) {
	if f.whoAmI == nil {
		return "tester@example.com", nil
	}
	return f.whoAmI(ctx)
}

func TestResolverHostOverridePrecedence(t *testing.T) {
	api := &fakeAPI{
		listEndpoints: func(context.Context, string, string) ([]controlplane.Endpoint, error) {
			t.Fatal("discovery must not run when a host override is set")
			return nil, nil
		},
	}
	r := NewResolver(ResolverConfig{
		Project:      "proj",
		Branch:       "production",
		HostOverride: "static.db.example.com",
		UserOverride: "svc-user",
	}, api)

	ep, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ep.Host != "static.db.example.com" {
		t.Errorf("host = %q, want override host", ep.Host)
	}
	if ep.User != "svc-user" {
		t.Errorf("user = %q, want override user", ep.User)
	}
	if !ep.Static {
		t.Error("override endpoint should be marked static")
	}
}

func TestResolverFirstEndpointWins(t *testing.T) {
	api := &fakeAPI{
		listEndpoints: func(context.Context, string, string) ([]controlplane.Endpoint, error) {
			return []controlplane.Endpoint{
				{Name: "ep-a", Host: "a.db.example.com", Spec: controlplane.AutoscaleSpec{MinCU: 0.5, MaxCU: 4}},
				{Name: "ep-b", Host: "b.db.example.com"},
			}, nil
		},
	}
	r := NewResolver(ResolverConfig{Project: "proj", Branch: "production"}, api)

	ep, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ep.Name != "ep-a" || ep.Host != "a.db.example.com" {
		t.Errorf("resolved %s/%s, want first discovered endpoint", ep.Name, ep.Host)
	}
	if ep.MaxCU != 4 {
		t.Errorf("MaxCU = %v, want 4", ep.MaxCU)
	}
	if ep.State != StateActive {
		t.Errorf("state = %q, want active", ep.State)
	}
}

func TestResolverCachesAndInvalidates(t *testing.T) {
	api := &fakeAPI{
		listEndpoints: func(context.Context, string, string) ([]controlplane.Endpoint, error) {
			return []controlplane.Endpoint{{Name: "ep", Host: "db.example.com"}}, nil
		},
	}
	r := NewResolver(ResolverConfig{Project: "proj", Branch: "production"}, api)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx); err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&api.listCalls); n != 1 {
		t.Errorf("discovery calls = %d, want 1 (cached)", n)
	}

	r.Invalidate()
	if r.Cached() != nil {
		t.Error("cache should be empty after Invalidate")
	}
	if _, err := r.Resolve(ctx); err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}
	if n := atomic.LoadInt32(&api.listCalls); n != 2 {
		t.Errorf("discovery calls = %d, want 2 after invalidate", n)
	}
}

func TestResolverNoEndpoints(t *testing.T) {
	api := &fakeAPI{
		listEndpoints: func(context.Context, string, string) ([]controlplane.Endpoint, error) {
			return nil, nil
		},
	}
	r := NewResolver(ResolverConfig{Project: "proj", Branch: "production"}, api)

	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrEndpointNotFound) {
		t.Fatalf("err = %v, want ErrEndpointNotFound", err)
	}
	if r.Cached() != nil {
		t.Error("failed discovery must not populate the cache")
	}
}

func TestResolverConcurrentSingleDiscovery(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		listEndpoints: func(context.Context, string, string) ([]controlplane.Endpoint, error) {
			<-release
			return []controlplane.Endpoint{{Name: "ep", Host: "db.example.com"}}, nil
		},
	}
	r := NewResolver(ResolverConfig{Project: "proj", Branch: "production"}, api)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background()); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&api.listCalls); n != 1 {
		t.Errorf("discovery calls = %d, want 1 under concurrency", n)
	}
}
