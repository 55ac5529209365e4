package users

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// DB は pgxpool.Pool と pgxmock の共通部分です。
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository は PostgreSQL を使った Repository 実装です。
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository は PostgresRepository を作成します。
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username)
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").
			With("operation", "find user by username").
			With("username", username).
			Wrap(err)
	}
	found, err := collectUsers(rows)
	if err != nil {
		return nil, oops.Code("USER_LOOKUP_FAILED").
			With("operation", "scan users").
			With("username", username).
			Wrap(err)
	}
	return found, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, oops.Code("USER_INSERT_FAILED").Errorf("user is nil")
	}

	created := *user
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, user.Username, user.PasswordHash).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				With("constraint", pgErr.ConstraintName).
				Wrap(ErrDuplicateUsername)
		}
		return nil, oops.Code("USER_INSERT_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return &created, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		ORDER BY id
	`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "list users").Wrap(err)
	}
	all, err := collectUsers(rows)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").With("operation", "scan users").Wrap(err)
	}
	return all, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()

	result := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
