package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourusername/sessionauth/internal/config"
	"github.com/yourusername/sessionauth/internal/jobs"
	"github.com/yourusername/sessionauth/internal/observability"
	"github.com/yourusername/sessionauth/internal/platform"
	"github.com/yourusername/sessionauth/internal/session"
)

// sweepRecordTTL は直近の掃除記録を残しておく期間です。
const sweepRecordTTL = 24 * time.Hour

// setupSweep は期限切れセッション掃除のジョブを組み立てます。
// 返す関数でワーカーと Redis 接続を閉じます。
func setupSweep(ctx context.Context, cfg *config.Config, sweeper session.Sweeper, metrics *observability.Metrics, logger *slog.Logger) (*jobs.Manager, func(), error) {
	client, err := platform.OpenRedis(ctx, cfg.QueueRedisURL)
	if err != nil {
		return nil, nil, err
	}

	store := jobs.NewStore(client, sweepRecordTTL)
	manager, err := jobs.NewManager(sweeper, store, jobs.Options{
		RedisURL: cfg.QueueRedisURL,
		Interval: cfg.SweepInterval(),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	closeFn := func() {
		manager.Shutdown()
		_ = client.Close()
	}
	return manager, closeFn, nil
}
