package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DB は pgxpool.Pool と pgxmock の共通部分です。
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore は sessions テーブルにセッションを保存します。
// 期限切れの行は Load で除外し、DeleteExpired で掃除します。
type PostgresStore struct {
	db  DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresStore は PostgresStore を作成します。
func NewPostgresStore(db DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
}

func (s *PostgresStore) Create(ctx context.Context, payload Payload) (string, error) {
	if err := validatePayload(payload); err != nil {
		return "", err
	}
	id, err := GenerateID()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").Wrap(err)
	}

	now := s.now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO sessions (sid, user_id, username, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, payload.User.ID, payload.User.Username, now, now.Add(s.ttl))
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", payload.User.ID).
			Wrap(err)
	}
	return id, nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	var record Session
	err := s.db.QueryRow(ctx, `
		SELECT sid, user_id, username, created_at, expires_at
		FROM sessions
		WHERE sid = $1 AND expires_at > $2
	`, id, s.now().UTC()).Scan(
		&record.ID,
		&record.User.ID,
		&record.User.Username,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOAD_FAILED").
			With("operation", "select session").
			Wrap(err)
	}
	return &record, nil
}

func (s *PostgresStore) Destroy(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE sid = $1`, id); err != nil {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, id string) error {
	now := s.now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE sessions SET expires_at = $2
		WHERE sid = $1 AND expires_at > $3
	`, id, now.Add(s.ttl), now)
	if err != nil {
		return oops.Code("SESSION_TOUCH_FAILED").
			With("operation", "extend session").
			Wrap(err)
	}
	return nil
}

// DeleteExpired は期限切れの行を削除し、削除件数を返します。
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}
