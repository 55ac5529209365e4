package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{"id", "username", "password_hash", "created_at"}

func TestPostgresRepository_FindByUsername(t *testing.T) {
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      []User
		wantErr   bool
	}{
		{
			name: "returns matching user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(userColumns).AddRow(int64(1), "sue", "$2a$hash", createdAt)
				mock.ExpectQuery(`WHERE username = \$1`).WithArgs("sue").WillReturnRows(rows)
			},
			want: []User{{ID: 1, Username: "sue", PasswordHash: "$2a$hash", CreatedAt: createdAt}},
		},
		{
			name: "returns empty slice when absent",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`WHERE username = \$1`).WithArgs("sue").WillReturnRows(pgxmock.NewRows(userColumns))
			},
			want: []User{},
		},
		{
			name: "wraps query errors",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`WHERE username = \$1`).WithArgs("sue").WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewPostgresRepository(mock)
			got, err := repo.FindByUsername(context.Background(), "sue")
			if tt.wantErr {
				require.Error(t, err)
				oopsErr, ok := oops.AsOops(err)
				require.True(t, ok)
				assert.Equal(t, "USER_LOOKUP_FAILED", oopsErr.Code())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresRepository_Insert(t *testing.T) {
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("returns generated id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("sue", "$2a$hash").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), createdAt))

		repo := NewPostgresRepository(mock)
		got, err := repo.Insert(context.Background(), &User{Username: "sue", PasswordHash: "$2a$hash"})
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ID)
		assert.Equal(t, "sue", got.Username)
		assert.Equal(t, createdAt, got.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("sue", "$2a$hash").
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_username_key"})

		repo := NewPostgresRepository(mock)
		_, err = repo.Insert(context.Background(), &User{Username: "sue", PasswordHash: "$2a$hash"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateUsername)
		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		assert.Equal(t, "USER_DUPLICATE", oopsErr.Code())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps other errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("sue", "$2a$hash").
			WillReturnError(errors.New("timeout"))

		repo := NewPostgresRepository(mock)
		_, err = repo.Insert(context.Background(), &User{Username: "sue", PasswordHash: "$2a$hash"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicateUsername)
		assert.Contains(t, err.Error(), "timeout")
	})

	t.Run("rejects nil user", func(t *testing.T) {
		repo := NewPostgresRepository(nil)
		_, err := repo.Insert(context.Background(), nil)
		require.Error(t, err)
	})
}

func TestPostgresRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := pgxmock.NewRows(userColumns).
		AddRow(int64(1), "sue", "h1", createdAt).
		AddRow(int64(2), "bob", "h2", createdAt)
	mock.ExpectQuery(`ORDER BY id`).WillReturnRows(rows)

	repo := NewPostgresRepository(mock)
	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sue", got[0].Username)
	assert.Equal(t, "bob", got[1].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}
