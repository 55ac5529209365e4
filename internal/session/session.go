// Package session はサーバー側セッションの保存と、gin-contrib/sessions への接続を提供します。
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// User はセッションに紐づけるユーザー情報です。パスワードハッシュは含めません。
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Payload はセッション作成時に保存する内容です。
type Payload struct {
	User User
}

// Session は保存済みのセッションレコードです。
type Session struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpiredAt は t の時点で期限切れかどうかを返します。
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Store はセッションの作成・読み込み・破棄を行います。
// 期限切れの判定はストア側の責務です。
type Store interface {
	// Create は新しいセッションを保存し、セッションIDを返します。
	Create(ctx context.Context, payload Payload) (string, error)
	// Load はセッションを返します。存在しないか期限切れなら (nil, nil) です。
	Load(ctx context.Context, id string) (*Session, error)
	// Destroy はセッションを削除します。存在しなくてもエラーにはしません。
	Destroy(ctx context.Context, id string) error
	// Touch は有効期限を現在時刻から TTL 分だけ延長します。
	Touch(ctx context.Context, id string) error
}

// Sweeper は期限切れセッションをまとめて削除できるストアが実装します。
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// idBytes は 256 bit 分のエントロピーです。
const idBytes = 32

// GenerateID は暗号学的に安全なセッションIDを生成します。
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validatePayload(payload Payload) error {
	if payload.User.ID == 0 || payload.User.Username == "" {
		return ErrAnonymous
	}
	return nil
}
