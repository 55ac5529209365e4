package auth

import (
	"context"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/yourusername/sessionauth/internal/session"
	"github.com/yourusername/sessionauth/internal/users"
)

// minPasswordRunes より長いパスワードだけを受け付けます。
const minPasswordRunes = 3

type credentials struct {
	Username string  `json:"username"`
	Password *string `json:"password"`
}

func bindCredentials(c *gin.Context) (credentials, error) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		return credentials{}, ErrInvalidInput
	}
	return req, nil
}

// requireSession は有効なセッションのユーザーを返します。
// ストアの障害は未ログインとは区別してそのまま返します。
func (m *Manager) requireSession(c *gin.Context) (session.User, error) {
	user, ok, err := m.sessions.Current(c.Request, m.cookieName)
	if err != nil {
		return session.User{}, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}
	if !ok {
		return session.User{}, ErrUnauthenticated
	}
	return user, nil
}

func (m *Manager) usernameMustBeFree(ctx context.Context, username string) error {
	found, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if len(found) > 0 {
		return ErrUsernameTaken
	}
	return nil
}

func (m *Manager) usernameMustExist(ctx context.Context, username string) (users.User, error) {
	found, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		return users.User{}, err
	}
	if len(found) == 0 {
		return users.User{}, ErrInvalidCredentials
	}
	return found[0], nil
}

func passwordLengthPolicy(password *string) (string, error) {
	if password == nil || utf8.RuneCountInString(*password) <= minPasswordRunes {
		return "", ErrWeakPassword
	}
	return *password, nil
}
