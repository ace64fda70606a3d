package conn

import (
	"context"
	"fmt"
	"time"

	"tidebase/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewPool builds the pooled variant of the connection layer. Every new
// physical socket goes through BeforeConnect, which re-resolves the endpoint
// and presents a fresh credential, and sockets are rotated before the token
// they were opened with can expire.
func (m *Manager) NewPool(ctx context.Context, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := m.buildPoolConfig(ctx, maxConns)
	if err != nil {
		return nil, err
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (m *Manager) buildPoolConfig(ctx context.Context, maxConns int32) (*pgxpool.Config, error) {
	ep, err := m.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=require",
		ep.Host, m.cfg.Port, m.cfg.Database, ep.User)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("build pool config: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	// Rotate sockets at the freshness window so no connection outlives the
	// credential it authenticated with.
	cfg.MaxConnLifetime = m.tokens.Freshness()
	cfg.ConnConfig.ConnectTimeout = m.cfg.ConnectTimeout

	cfg.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
		ep, err := m.resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		cred, err := m.tokens.Token(ctx)
		if err != nil {
			return err
		}
		cc.Host = ep.Host
		cc.User = ep.User
		cc.Password = cred.Token
		return nil
	}

	return cfg, nil
}

// PoolOpener adapts a pgxpool.Pool to the Opener interface, keeping the same
// bounded retry/backoff discipline as Manager.Open for checkouts that have to
// dial a new socket through a cold start. Each checkout re-validates
// credential freshness, since the pool's lifetime spans token rotations.
type PoolOpener struct {
	m *Manager

	acquire func(ctx context.Context) (Conn, error)
}

func NewPoolOpener(m *Manager, pool *pgxpool.Pool) *PoolOpener {
	return &PoolOpener{
		m: m,
		acquire: func(ctx context.Context) (Conn, error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return pooledConn{c}, nil
		},
	}
}

func (p *PoolOpener) Open(ctx context.Context) (Conn, error) {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= p.m.cfg.Attempts; attempt++ {
		// Freshness check up front: a stale cached credential is reissued
		// here so BeforeConnect hands new sockets a live token.
		if _, err := p.m.tokens.Token(ctx); err != nil {
			lastErr = err
		} else {
			acquireCtx, cancel := context.WithTimeout(ctx, p.m.cfg.ConnectTimeout)
			c, err := p.acquire(acquireCtx)
			cancel()
			if err == nil {
				p.m.observer.ObserveOpen(attempt, time.Since(start))
				return c, nil
			}
			lastErr = err
			p.m.react(ctx, err)
		}

		p.m.observer.RecordOpenFailure()
		logger.Warn("pool checkout failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if ctx.Err() != nil {
			break
		}
		if attempt < p.m.cfg.Attempts {
			if err := p.m.sleep(ctx, time.Duration(attempt)*p.m.cfg.BackoffBase); err != nil {
				break
			}
		}
	}

	host := ""
	if ep := p.m.resolver.Cached(); ep != nil {
		host = ep.Host
	}
	return nil, &ExhaustedError{
		Endpoint: host,
		Attempts: p.m.cfg.Attempts,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}

// pooledConn returns the socket to the pool on Close instead of tearing it
// down.
type pooledConn struct {
	c *pgxpool.Conn
}

func (p pooledConn) Begin(ctx context.Context) (pgx.Tx, error) { return p.c.Begin(ctx) }
func (p pooledConn) Ping(ctx context.Context) error            { return p.c.Ping(ctx) }
func (p pooledConn) Close(context.Context) error {
	p.c.Release()
	return nil
}
