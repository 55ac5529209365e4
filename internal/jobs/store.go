package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const lastRunKey = "session:sweep:last"

// ErrRunNotFound は更新対象の記録が無いときに返ります。
var ErrRunNotFound = errors.New("jobs: sweep run not found")

// RunStore は直近の掃除ジョブの記録を扱います。
type RunStore interface {
	Get(ctx context.Context) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkDone(ctx context.Context, runID string, deleted int64) error
	MarkFailed(ctx context.Context, runID string, errInfo *ErrorInfo) error
}

// Store は掃除ジョブの記録を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ RunStore = (*Store)(nil)

// NewStore は Store を作成します。ttl が 0 なら期限を付けません。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get は直近の記録を返します。まだ一度も実行されていなければ nil です。
func (s *Store) Get(ctx context.Context) (*Record, error) {
	data, err := s.rdb.Get(ctx, lastRunKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, oops.Code("SWEEP_RECORD_LOAD_FAILED").Wrap(err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, oops.Code("SWEEP_RECORD_LOAD_FAILED").Wrap(err)
	}
	return &record, nil
}

// Upsert は記録を保存します。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return oops.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, lastRunKey, payload, s.ttl).Err(); err != nil {
		return oops.Code("SWEEP_RECORD_SAVE_FAILED").Wrap(err)
	}
	return nil
}

// MarkDone は成功時の情報を保存します。
func (s *Store) MarkDone(ctx context.Context, runID string, deleted int64) error {
	return s.updatePartial(ctx, runID, func(record *Record) {
		record.Status = StatusSucceeded
		record.Deleted = deleted
		record.Error = nil
	})
}

// MarkFailed は失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, runID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, runID, func(record *Record) {
		record.Status = StatusFailed
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

func (s *Store) updatePartial(ctx context.Context, runID string, mutate func(*Record)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, lastRunKey).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrRunNotFound
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if record.RunID != runID {
			return ErrRunNotFound
		}

		mutate(&record)
		now := time.Now().UTC()
		record.FinishedAt = now
		record.UpdatedAt = now
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lastRunKey, payload, s.ttl)
			return nil
		})
		return err
	}

	for {
		err := s.rdb.Watch(ctx, txf, lastRunKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrRunNotFound) {
			return oops.Code("SWEEP_RECORD_SAVE_FAILED").With("run_id", runID).Wrap(err)
		}
		return err
	}
}
