package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tidebase/internal/controlplane"
	"tidebase/internal/metrics"
	"tidebase/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Credential is the short-lived database token plus the identity it was
// issued for. Replaced atomically on refresh, never partially updated.
type Credential struct {
	Token     string
	Principal string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCache hands out the current credential, reissuing it once it is older
// than the freshness window. The window is strictly shorter than the token's
// lifetime so no caller ever presents an expired token to the engine.
// Concurrent callers during a miss share a single in-flight issuance.
type TokenCache struct {
	api      controlplane.API
	resolver *Resolver

	freshness time.Duration
	lifetime  time.Duration

	observer metrics.ConnObserver

	mu      sync.RWMutex
	current *Credential

	group singleflight.Group
	now   func() time.Time
}

func NewTokenCache(api controlplane.API, resolver *Resolver, freshness, lifetime time.Duration, observer metrics.ConnObserver) *TokenCache {
	if freshness >= lifetime {
		// Clamp so the guarantee holds even with a misconfigured window.
		freshness = lifetime * 5 / 6
	}
	if observer == nil {
		observer = metrics.NopConnObserver{}
	}
	return &TokenCache{
		api:       api,
		resolver:  resolver,
		freshness: freshness,
		lifetime:  lifetime,
		observer:  observer,
		now:       time.Now,
	}
}

// Lifetime is the token's full validity period.
func (t *TokenCache) Lifetime() time.Duration { return t.lifetime }

// Freshness is the window after which a token is proactively reissued.
func (t *TokenCache) Freshness() time.Duration { return t.freshness }

// Current returns the cached credential without refreshing, for diagnostics.
func (t *TokenCache) Current() (Credential, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return Credential{}, false
	}
	return *t.current, true
}

// Token returns the cached credential while it is fresh, otherwise issues a
// new one. Issuance failures wrap ErrCredentialIssuance.
func (t *TokenCache) Token(ctx context.Context) (Credential, error) {
	t.mu.RLock()
	cur := t.current
	t.mu.RUnlock()

	if cur != nil && t.now().Sub(cur.IssuedAt) < t.freshness {
		return *cur, nil
	}
	return t.refresh(ctx, cur)
}

// ForceRefresh discards the cached credential regardless of age. Used after
// the engine rejects a token mid-lifetime (e.g. the endpoint was recreated).
func (t *TokenCache) ForceRefresh(ctx context.Context) (Credential, error) {
	t.mu.Lock()
	stale := t.current
	t.current = nil
	t.mu.Unlock()
	return t.refresh(ctx, stale)
}

// refresh issues a new credential unless another caller already replaced the
// one we observed (prev); singleflight collapses the storm during a miss.
func (t *TokenCache) refresh(ctx context.Context, prev *Credential) (Credential, error) {
	v, err, _ := t.group.Do("token", func() (any, error) {
		t.mu.RLock()
		cur := t.current
		t.mu.RUnlock()
		if cur != nil && cur != prev && t.now().Sub(cur.IssuedAt) < t.freshness {
			return *cur, nil
		}

		cred, err := t.issue(ctx)
		if err != nil {
			return Credential{}, err
		}

		t.mu.Lock()
		t.current = &cred
		t.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (t *TokenCache) issue(ctx context.Context) (Credential, error) {
	ep, err := t.resolver.Resolve(ctx)
	if err != nil {
		return Credential{}, err
	}

	issued := t.now()
	cred := Credential{
		Principal: ep.User,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(t.lifetime),
	}

	var raw controlplane.Credential
	if ep.Static {
		raw, err = t.api.WorkspaceToken(ctx)
	} else {
		raw, err = t.api.GenerateCredential(ctx, ep.Name)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrCredentialIssuance, err)
	}
	t.observer.RecordTokenRefresh()
	cred.Token = raw.Token
	if !raw.ExpiresAt.IsZero() {
		cred.ExpiresAt = raw.ExpiresAt
	} else if exp, ok := tokenExpiry(raw.Token); ok {
		cred.ExpiresAt = exp
	}

	logger.Info("database credential issued",
		zap.String("principal", cred.Principal),
		zap.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

// tokenExpiry extracts the exp claim when the issued token happens to be a
// JWT. The signature is not checked here; the storage engine is the verifier.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
