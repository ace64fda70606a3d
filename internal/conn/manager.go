package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tidebase/internal/metrics"
	"tidebase/pkg/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Conn is the slice of a live database connection the executor needs.
// *pgx.Conn satisfies it.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ManagerConfig tunes the retry schedule. The defaults (3 attempts, 10s
// per-attempt timeout, 2s linear backoff) are sized for a scale-to-zero
// endpoint resuming compute: the first attempt typically lands while the
// endpoint is still waking, and the backoff rides out that window.
type ManagerConfig struct {
	Database       string
	Port           uint16
	Attempts       int
	ConnectTimeout time.Duration
	BackoffBase    time.Duration
}

func (c *ManagerConfig) applyDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.Port == 0 {
		c.Port = 5432
	}
}

// Manager opens physical connections, composing endpoint resolution and
// credential freshness with a bounded retry loop. Failures are classified so
// the next attempt fixes what actually broke: unreachable host re-resolves
// the endpoint, an auth rejection forces a token refresh, anything else just
// retries.
type Manager struct {
	cfg      ManagerConfig
	resolver *Resolver
	tokens   *TokenCache
	observer metrics.ConnObserver

	dial  func(ctx context.Context, cc *pgx.ConnConfig) (Conn, error)
	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg ManagerConfig, resolver *Resolver, tokens *TokenCache, observer metrics.ConnObserver) *Manager {
	cfg.applyDefaults()
	if observer == nil {
		observer = metrics.NopConnObserver{}
	}
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		tokens:   tokens,
		observer: observer,
		dial: func(ctx context.Context, cc *pgx.ConnConfig) (Conn, error) {
			return pgx.ConnectConfig(ctx, cc)
		},
		sleep: sleepCtx,
	}
}

// Open returns a live connection or an ExhaustedError after the attempt
// budget is spent. ErrEndpointNotFound is fatal and returned immediately.
func (m *Manager) Open(ctx context.Context) (Conn, error) {
	start := time.Now()
	var lastErr error
	var lastHost string

	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		ep, err := m.resolver.Resolve(ctx)
		if err != nil {
			if errors.Is(err, ErrEndpointNotFound) {
				return nil, err
			}
			lastErr = err
		} else {
			lastHost = ep.Host
			cred, err := m.tokens.Token(ctx)
			if err != nil {
				lastErr = err
			} else {
				c, err := m.attempt(ctx, ep, cred)
				if err == nil {
					m.observer.ObserveOpen(attempt, time.Since(start))
					if attempt > 1 {
						logger.Info("connected after retry",
							zap.String("host", ep.Host),
							zap.Int("attempt", attempt),
							zap.Duration("elapsed", time.Since(start)))
					}
					return c, nil
				}
				lastErr = err
				m.react(ctx, err)
			}
		}

		m.observer.RecordOpenFailure()
		logger.Warn("connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.Attempts),
			zap.String("host", lastHost),
			zap.Error(lastErr))

		if ctx.Err() != nil {
			break
		}
		if attempt < m.cfg.Attempts {
			wait := time.Duration(attempt) * m.cfg.BackoffBase
			if err := m.sleep(ctx, wait); err != nil {
				break
			}
		}
	}

	return nil, &ExhaustedError{
		Endpoint: lastHost,
		Attempts: m.cfg.Attempts,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// attempt dials once with the per-attempt timeout. A partially opened channel
// is closed by pgx when the context fires, so nothing leaks on abandonment.
func (m *Manager) attempt(ctx context.Context, ep *Endpoint, cred Credential) (Conn, error) {
	cc, err := m.connConfig(ep)
	if err != nil {
		return nil, err
	}
	cc.Password = cred.Token

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	return m.dial(dialCtx, cc)
}

func (m *Manager) connConfig(ep *Endpoint) (*pgx.ConnConfig, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=require",
		ep.Host, m.cfg.Port, m.cfg.Database, ep.User)
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("build connection config: %w", err)
	}
	return cc, nil
}

// CurrentConfig builds a connection config from the resolved endpoint and a
// fresh credential without dialing. Callers that hand the config to another
// driver layer should Open first so a suspended endpoint is already awake.
func (m *Manager) CurrentConfig(ctx context.Context) (*pgx.ConnConfig, error) {
	ep, err := m.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	cred, err := m.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	cc, err := m.connConfig(ep)
	if err != nil {
		return nil, err
	}
	cc.Password = cred.Token
	return cc, nil
}

// react applies the per-class remedy before the next attempt.
func (m *Manager) react(ctx context.Context, err error) {
	switch classifyDialError(err) {
	case failureEndpoint:
		logger.Warn("host unreachable, invalidating endpoint cache", zap.Error(err))
		m.resolver.Invalidate()
	case failureAuth:
		logger.Warn("authentication rejected, forcing credential refresh", zap.Error(err))
		if _, rerr := m.tokens.ForceRefresh(ctx); rerr != nil {
			logger.Error("forced credential refresh failed", zap.Error(rerr))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
