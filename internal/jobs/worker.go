package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/yourusername/sessionauth/internal/logging"
)

func (m *Manager) handleSweepTask(ctx context.Context, _ *asynq.Task) error {
	runID, ok := asynq.GetTaskID(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	_, err := m.RunOnce(ctx, runID)
	return err
}

// RunOnce は掃除を一度だけ実行し、削除件数を返します。
// 結果は RunStore に記録します。
func (m *Manager) RunOnce(ctx context.Context, runID string) (int64, error) {
	if err := m.store.Upsert(ctx, &Record{
		RunID:  runID,
		Status: StatusRunning,
	}); err != nil {
		return 0, err
	}

	deleted, err := m.sweeper.DeleteExpired(ctx)
	if err != nil {
		logging.LogError(m.logger, "session sweep failed", err, "run_id", runID)
		if markErr := m.store.MarkFailed(ctx, runID, errorInfo(err)); markErr != nil {
			logging.LogError(m.logger, "failed to record sweep failure", markErr, "run_id", runID)
		}
		return 0, err
	}

	m.metrics.AddSwept(deleted)
	if err := m.store.MarkDone(ctx, runID, deleted); err != nil {
		return deleted, err
	}
	m.logger.Info("session sweep finished", "run_id", runID, "deleted", deleted)
	return deleted, nil
}

func errorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Code: "INTERNAL_ERROR", Message: err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() != nil {
		info.Code = fmt.Sprint(oopsErr.Code())
	}
	return info
}

// asynqLogger は asynq のログを slog に流します。
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
