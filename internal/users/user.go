// Package users はユーザーの永続化を扱います。
package users

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateUsername は一意制約に違反したときに返されます。
var ErrDuplicateUsername = errors.New("username already exists")

// User は users テーブルの1行を表します。
// PasswordHash はレスポンスに含めてはいけません。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository はユーザーの検索と登録を提供します。
type Repository interface {
	// FindByUsername は username が一致するユーザーを返します。該当なしは空スライスです。
	FindByUsername(ctx context.Context, username string) ([]User, error)
	// Insert はユーザーを登録し、採番済みの ID を持つユーザーを返します。
	Insert(ctx context.Context, user *User) (*User, error)
	// List は登録済みユーザーを ID 順に返します。
	List(ctx context.Context) ([]User, error)
}
