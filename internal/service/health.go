package service

import (
	"context"
	"time"

	"tidebase/internal/conn"
)

// HealthService reports endpoint reachability and credential state for the
// dashboard health panel.
type HealthService struct {
	resolver *conn.Resolver
	tokens   *conn.TokenCache
	opener   conn.Opener
}

func NewHealthService(resolver *conn.Resolver, tokens *conn.TokenCache, opener conn.Opener) *HealthService {
	return &HealthService{resolver: resolver, tokens: tokens, opener: opener}
}

type HealthReport struct {
	Status       string    `json:"status"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Static       bool      `json:"static,omitempty"`
	TokenExpires time.Time `json:"token_expires,omitempty"`
	PingMillis   int64     `json:"ping_ms,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Check opens a connection and pings through it. A failed check still returns
// a report so the dashboard can show what is wrong.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{Status: "ok"}
	if ep := s.resolver.Cached(); ep != nil {
		report.Endpoint = ep.Host
		report.Static = ep.Static
	}
	if cred, ok := s.tokens.Current(); ok {
		report.TokenExpires = cred.ExpiresAt
	}

	start := time.Now()
	c, err := s.opener.Open(ctx)
	if err != nil {
		report.Status = "unavailable"
		report.Error = err.Error()
		return report
	}
	defer c.Close(ctx)

	if err := c.Ping(ctx); err != nil {
		report.Status = "degraded"
		report.Error = err.Error()
		return report
	}
	report.PingMillis = time.Since(start).Milliseconds()
	return report
}
