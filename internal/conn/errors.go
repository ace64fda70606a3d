package conn

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrEndpointNotFound means no compute endpoint exists for the configured
	// project/branch. Retrying does not help; an operator has to provision one.
	ErrEndpointNotFound = errors.New("no compute endpoint registered for project/branch")

	// ErrCredentialIssuance means the control plane could not issue a database
	// token. Callers may retry the whole operation.
	ErrCredentialIssuance = errors.New("credential issuance failed")

	// ErrAuditWrite marks a failure to install or verify the change-capture
	// machinery. A monitored table without its trigger would silently drop
	// audit records, so provisioning treats this as fatal.
	ErrAuditWrite = errors.New("audit capture install failed")

	// ErrNoRows is returned when a statement that must produce a row, such as
	// an insert with a returning clause, produced none.
	ErrNoRows = errors.New("no rows returned")
)

// ExhaustedError is returned by the ConnectionManager after the retry budget
// is spent. It wraps the last underlying error and carries enough context to
// tell a cold start from a real outage.
type ExhaustedError struct {
	Endpoint string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("connection exhausted after %d attempts over %s (endpoint %s): %v",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.Endpoint, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// StatementError wraps an engine rejection of a statement. Never retried.
type StatementError struct {
	Kind StatementKind
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement failed (%s): %v", e.Kind, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// failureClass categorizes a connection attempt failure so the manager knows
// what to fix before the next attempt.
type failureClass int

const (
	failureGeneric failureClass = iota
	failureEndpoint              // DNS / unreachable host: the endpoint may have moved
	failureAuth                  // engine rejected the token
)

// classifyDialError buckets an error from a physical connect attempt.
func classifyDialError(err error) failureClass {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 28000 invalid_authorization_specification, 28P01 invalid_password
		if pgErr.Code == "28000" || pgErr.Code == "28P01" {
			return failureAuth
		}
		return failureGeneric
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failureEndpoint
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" && !opErr.Timeout() {
			return failureEndpoint
		}
	}
	return failureGeneric
}
