package conn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tidebase/internal/controlplane"
)

func newTestResolver(api controlplane.API) *Resolver {
	return NewResolver(ResolverConfig{Project: "proj", Branch: "production"}, api)
}

func singleEndpoint(context.Context, string, string) ([]controlplane.Endpoint, error) {
	return []controlplane.Endpoint{{Name: "ep", Host: "db.example.com"}}, nil
}

func TestTokenCacheFreshnessWindow(t *testing.T) {
	var issued int32
	api := &fakeAPI{
		listEndpoints: singleEndpoint,
		generateCredential: func(context.Context, string) (controlplane.Credential, error) {
			n := atomic.AddInt32(&issued, 1)
			return controlplane.Credential{Token: "tok-" + string(rune('0'+n))}, nil
		},
	}
	tc := NewTokenCache(api, newTestResolver(api), 50*time.Minute, time.Hour, nil)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	tc.now = func() time.Time { return clock }

	ctx := context.Background()
	first, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	// Just inside the window: cached token is reused.
	clock = base.Add(50*time.Minute - time.Second)
	again, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if again.Token != first.Token {
		t.Error("token inside the freshness window must be reused")
	}
	if atomic.LoadInt32(&issued) != 1 {
		t.Errorf("issuances = %d, want 1", issued)
	}

	// At the boundary the token is no longer fresh.
	clock = base.Add(50 * time.Minute)
	fresh, err := tc.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if fresh.Token == first.Token {
		t.Error("token at the freshness boundary must be reissued")
	}
	if atomic.LoadInt32(&issued) != 2 {
		t.Errorf("issuances = %d, want 2", issued)
	}
}

func TestTokenCacheSingleFlight(t *testing.T) {
	var issued int32
	release := make(chan struct{})
	api := &fakeAPI{
		listEndpoints: singleEndpoint,
		generateCredential: func(context.Context, string) (controlplane.Credential, error) {
			atomic.AddInt32(&issued, 1)
			<-release
			return controlplane.Credential{Token: "tok"}, nil
		},
	}
	tc := NewTokenCache(api, newTestResolver(api), 50*time.Minute, time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tc.Token(context.Background()); err != nil {
				t.Errorf("Token: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&issued); n != 1 {
		t.Errorf("issuances = %d, want 1 for concurrent misses", n)
	}
}

func TestTokenCacheForceRefresh(t *testing.T) {
	var issued int32
	api := &fakeAPI{
		listEndpoints: singleEndpoint,
		generateCredential: func(context.Context, string) (controlplane.Credential, error) {
			atomic.AddInt32(&issued, 1)
			return controlplane.Credential{Token: "tok"}, nil
		},
	}
	tc := NewTokenCache(api, newTestResolver(api), 50*time.Minute, time.Hour, nil)
	ctx := context.Background()

	if _, err := tc.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := tc.ForceRefresh(ctx); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if n := atomic.LoadInt32(&issued); n != 2 {
		t.Errorf("issuances = %d, want 2 (force refresh ignores freshness)", n)
	}
}

func TestTokenCacheStaticEndpointUsesWorkspaceToken(t *testing.T) {
	var workspaceCalls int32
	api := &fakeAPI{
		workspaceToken: func(context.Context) (controlplane.Credential, error) {
			atomic.AddInt32(&workspaceCalls, 1)
			return controlplane.Credential{Token: "ws-tok"}, nil
		},
		generateCredential: func(context.Context, string) (controlplane.Credential, error) {
			t.Fatal("static endpoints must not generate scoped credentials")
			return controlplane.Credential{}, nil
		},
	}
	resolver := NewResolver(ResolverConfig{
		HostOverride: "static.db.example.com",
		UserOverride: "svc",
	}, api)
	tc := NewTokenCache(api, resolver, 50*time.Minute, time.Hour, nil)

	cred, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if cred.Token != "ws-tok" {
		t.Errorf("token = %q, want workspace token", cred.Token)
	}
	if atomic.LoadInt32(&workspaceCalls) != 1 {
		t.Errorf("workspace token calls = %d, want 1", workspaceCalls)
	}
}

func TestTokenCacheIssuanceFailure(t *testing.T) {
	api := &fakeAPI{
		listEndpoints: singleEndpoint,
		generateCredential: func(context.Context, string) (controlplane.Credential, error) {
			return controlplane.Credential{}, errors.New("boom")
		},
	}
	tc := NewTokenCache(api, newTestResolver(api), 50*time.Minute, time.Hour, nil)

	_, err := tc.Token(context.Background())
	if !errors.Is(err, ErrCredentialIssuance) {
		t.Fatalf("err = %v, want ErrCredentialIssuance", err)
	}
	if _, ok := tc.Current(); ok {
		t.Error("failed issuance must not cache a credential")
	}
}

func TestTokenCacheClampsFreshness(t *testing.T) {
	api := &fakeAPI{listEndpoints: singleEndpoint}
	tc := NewTokenCache(api, newTestResolver(api), 2*time.Hour, time.Hour, nil)
	if tc.Freshness() >= tc.Lifetime() {
		t.Errorf("freshness %v must stay below lifetime %v", tc.Freshness(), tc.Lifetime())
	}
}
