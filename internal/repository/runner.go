package repository

import (
	"context"

	"tidebase/internal/conn"
)

// Runner is the statement surface the repositories are built on. The
// transactional executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, stmt conn.Statement) (conn.Result, error)
	ExecuteAll(ctx context.Context, stmts []conn.Statement) ([]conn.Result, error)
}
