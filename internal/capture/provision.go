package capture

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"tidebase/internal/conn"
	"tidebase/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate brings the schema to the latest version. The manager rides out a
// suspended endpoint with its own retry loop before the migration driver gets
// a database handle, since golang-migrate has no cold-start awareness of its
// own.
func Migrate(ctx context.Context, mgr *conn.Manager) error {
	warm, err := mgr.Open(ctx)
	if err != nil {
		return fmt.Errorf("warm endpoint for migration: %w", err)
	}
	_ = warm.Close(ctx)

	cc, err := mgr.CurrentConfig(ctx)
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*cc)
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Provision runs migrations, installs the capture triggers and verifies the
// wiring end to end.
func Provision(ctx context.Context, mgr *conn.Manager, rules []CaptureRule) error {
	if err := Migrate(ctx, mgr); err != nil {
		return err
	}
	exec := conn.NewExecutor(mgr)
	if err := Install(ctx, exec, rules); err != nil {
		return err
	}
	return Verify(ctx, exec, rules)
}
