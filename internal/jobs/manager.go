// Package jobs は期限切れセッションの定期掃除を Asynq で実行します。
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/yourusername/sessionauth/internal/observability"
	"github.com/yourusername/sessionauth/internal/session"
)

const (
	// TaskTypeSweep は期限切れセッション掃除のタスク名です。
	TaskTypeSweep = "session:sweep"

	queueMaintenance = "maintenance"
)

// Manager は掃除ジョブのスケジュールと実行を担います。
type Manager struct {
	sweeper   session.Sweeper
	store     RunStore
	metrics   *observability.Metrics
	logger    *slog.Logger
	interval  time.Duration
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
}

// Options は NewManager の設定です。
type Options struct {
	RedisURL string
	Interval time.Duration
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// NewManager は Manager を初期化します。Start するまで Redis には接続しません。
func NewManager(sweeper session.Sweeper, store RunStore, opts Options) (*Manager, error) {
	if sweeper == nil {
		return nil, oops.Errorf("sweeper is nil")
	}
	if store == nil {
		return nil, oops.Errorf("store is nil")
	}
	if opts.Interval <= 0 {
		return nil, oops.With("interval", opts.Interval).Errorf("sweep interval must be positive")
	}
	redisOpt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, oops.Code("QUEUE_CONFIG_INVALID").Wrapf(err, "failed to parse redis url")
	}

	m := newManager(sweeper, store, opts.Metrics, opts.Logger)
	m.interval = opts.Interval

	logger := asynqLogger{logger: m.logger.With("component", "asynq")}
	m.scheduler = asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   logger,
		LogLevel: asynq.WarnLevel,
	})
	m.server = asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			queueMaintenance: 1,
		},
		Logger:   logger,
		LogLevel: asynq.WarnLevel,
	})
	m.mux = asynq.NewServeMux()
	m.mux.HandleFunc(TaskTypeSweep, m.handleSweepTask)
	return m, nil
}

func newManager(sweeper session.Sweeper, store RunStore, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sweeper: sweeper,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// Start はスケジューラとワーカーを起動します。
func (m *Manager) Start() error {
	task := asynq.NewTask(TaskTypeSweep, nil)
	_, err := m.scheduler.Register(
		fmt.Sprintf("@every %s", m.interval),
		task,
		asynq.Queue(queueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(m.interval),
		asynq.Unique(m.interval),
	)
	if err != nil {
		return oops.Code("SWEEP_SCHEDULE_FAILED").Wrap(err)
	}

	if err := m.server.Start(m.mux); err != nil {
		return oops.Code("SWEEP_WORKER_START_FAILED").Wrap(err)
	}
	if err := m.scheduler.Start(); err != nil {
		m.server.Shutdown()
		return oops.Code("SWEEP_SCHEDULER_START_FAILED").Wrap(err)
	}
	m.logger.Info("session sweep scheduled", "interval", m.interval.String())
	return nil
}

// Shutdown はスケジューラとワーカーを停止します。
func (m *Manager) Shutdown() {
	if m.scheduler != nil {
		m.scheduler.Shutdown()
	}
	if m.server != nil {
		m.server.Shutdown()
	}
}

// LastRun は直近の掃除ジョブの記録を返します。
func (m *Manager) LastRun(ctx context.Context) (*Record, error) {
	return m.store.Get(ctx)
}
