// Package platform は Postgres と Redis への接続、スキーマのマイグレーションを扱います。
package platform

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectAttempts は起動時の接続リトライ回数です。
const ConnectAttempts = 5

func connectBackoff() retry.Backoff {
	return retry.WithMaxRetries(ConnectAttempts, retry.NewExponential(200*time.Millisecond))
}

// OpenPostgres はコネクションプールを作成し、疎通できるまでリトライします。
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrapf(err, "parse database url")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	err = retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("attempts", ConnectAttempts+1).
			Wrapf(err, "ping postgres")
	}
	return pool, nil
}
