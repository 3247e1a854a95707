// Package migrate applies the embedded SQL migrations of the project store.
package migrate

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const postgresDialect = "postgres"

//go:embed sql/*.sql
var migrations embed.FS

// Up runs all pending migrations through a database/sql handle borrowed
// from pool.
func Up(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(postgresDialect); err != nil {
		return fmt.Errorf("platform/migrate: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "sql"); err != nil {
		return fmt.Errorf("platform/migrate: up: %w", err)
	}
	return nil
}
