package platform

import (
	"context"
	"database/sql"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// テストから差し替えるためのフック
var gooseUpContext = goose.UpContext

// Migrate は埋め込みのマイグレーションを適用します。
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return migrateDB(ctx, db)
}

func migrateDB(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrapf(err, "apply migrations")
	}
	return nil
}
