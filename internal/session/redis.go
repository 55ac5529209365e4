package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const redisKeyPrefix = "sess:"

// RedisStore は Redis にセッションを保存します。期限切れは Redis の TTL に任せます。
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
		now: time.Now,
	}
}

func (s *RedisStore) Create(ctx context.Context, payload Payload) (string, error) {
	if err := validatePayload(payload); err != nil {
		return "", err
	}
	id, err := GenerateID()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	now := s.now().UTC()
	record := Session{
		ID:        id,
		User:      payload.User,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.put(ctx, &record); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("user_id", payload.User.ID).
			Wrap(err)
	}
	return id, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	data, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}

	var record Session
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").With("operation", "unmarshal session").Wrap(err)
	}
	if record.IsExpiredAt(s.now()) {
		return nil, nil
	}
	return &record, nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, redisKey(id)).Err(); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").Wrap(err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) error {
	record, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	record.ExpiresAt = s.now().UTC().Add(s.ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").Wrap(err)
	}
	// 読み込み後に Destroy されたキーは復活させない。
	if err := s.rdb.SetXX(ctx, redisKey(id), payload, s.ttl).Err(); err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").Wrap(err)
	}
	return nil
}

func (s *RedisStore) put(ctx context.Context, record *Session) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKey(record.ID), payload, s.ttl).Err()
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}
