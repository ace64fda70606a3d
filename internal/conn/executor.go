package conn

import (
	"context"
	"errors"
	"fmt"

	"tidebase/pkg/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// StatementKind is declared by the caller; the executor never inspects SQL
// text to guess whether a statement reads, writes, or writes with feedback.
type StatementKind int

const (
	Read StatementKind = iota
	Write
	WriteReturning
)

func (k StatementKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case WriteReturning:
		return "write_returning"
	default:
		return "unknown"
	}
}

// Statement is a parameterized statement plus its declared kind.
type Statement struct {
	Kind StatementKind
	SQL  string
	Args []any
}

// Result holds either a row set (Read, WriteReturning) or an affected-row
// count (Write).
type Result struct {
	Rows         []map[string]any
	RowsAffected int64
}

// Opener abstracts the ConnectionManager for the executor.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
}

// Executor runs statements with a strict transaction discipline: exactly one
// commit or rollback per call, and on any failure the original error is
// surfaced; a rollback failure is logged, never allowed to mask it. The
// change-capture triggers fire inside the same transaction, so a committed
// statement and its audit records are durable together or not at all.
type Executor struct {
	opener Opener
}

func NewExecutor(opener Opener) *Executor {
	return &Executor{opener: opener}
}

// Execute runs a single statement in its own transaction.
func (e *Executor) Execute(ctx context.Context, stmt Statement) (Result, error) {
	results, err := e.ExecuteAll(ctx, []Statement{stmt})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ExecuteAll runs every statement in one transaction with a single commit.
// Any failure rolls back the whole batch.
func (e *Executor) ExecuteAll(ctx context.Context, stmts []Statement) ([]Result, error) {
	if len(stmts) == 0 {
		return nil, errors.New("no statements to execute")
	}

	c, err := e.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("closing connection failed", zap.Error(cerr))
		}
	}()

	tx, err := c.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	results := make([]Result, 0, len(stmts))
	for _, stmt := range stmts {
		res, err := runStatement(ctx, tx, stmt)
		if err != nil {
			rollback(ctx, tx)
			return nil, &StatementError{Kind: stmt.Kind, Err: err}
		}
		results = append(results, res)
	}

	if err := tx.Commit(ctx); err != nil {
		rollback(ctx, tx)
		return nil, fmt.Errorf("commit: %w", err)
	}
	return results, nil
}

func runStatement(ctx context.Context, tx pgx.Tx, stmt Statement) (Result, error) {
	switch stmt.Kind {
	case Read, WriteReturning:
		rows, err := tx.Query(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return Result{}, err
		}
		collected, err := collectRows(rows)
		if err != nil {
			return Result{}, err
		}
		return Result{Rows: collected, RowsAffected: int64(len(collected))}, nil
	case Write:
		tag, err := tx.Exec(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return Result{}, err
		}
		return Result{RowsAffected: tag.RowsAffected()}, nil
	default:
		return Result{}, fmt.Errorf("unknown statement kind %d", stmt.Kind)
	}
}

func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// rollback is best effort: the transaction may already be aborted server-side.
func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error("rollback failed", zap.Error(err))
	}
}
