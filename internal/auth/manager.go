// Package auth はユーザー登録・ログイン・ログアウトとセッションによるアクセス制御を提供します。
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/sessionauth/internal/observability"
	"github.com/yourusername/sessionauth/internal/session"
	"github.com/yourusername/sessionauth/internal/users"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// Options は Manager の任意設定です。
type Options struct {
	// CookieName は sessions.Sessions に渡したクッキー名と一致させます。
	CookieName string
	// Cookie はログアウト時にクッキーを失効させる際の属性です。
	Cookie sessions.Options
	// Rolling が true なら保護されたリクエストのたびに有効期限を延長します。
	Rolling bool
	Metrics *observability.Metrics
}

// Manager は認証処理と依存をまとめた構造体です。
type Manager struct {
	users      users.Repository
	hasher     Hasher
	sessions   *session.GinStore
	cookieName string
	cookie     sessions.Options
	rolling    bool
	metrics    *observability.Metrics
}

// NewManager は認証マネージャーを作成します。
func NewManager(repo users.Repository, hasher Hasher, store *session.GinStore, opts Options) *Manager {
	return &Manager{
		users:      repo,
		hasher:     hasher,
		sessions:   store,
		cookieName: opts.CookieName,
		cookie:     opts.Cookie,
		rolling:    opts.Rolling,
		metrics:    opts.Metrics,
	}
}

// RegisterRoutes は /auth と保護された /api のルートを登録します。
func (m *Manager) RegisterRoutes(r gin.IRouter) {
	authGroup := r.Group("/auth")
	authGroup.POST("/register", m.Register)
	authGroup.POST("/login", m.Login)
	authGroup.GET("/logout", m.Logout)

	api := r.Group("/api", m.RequireSession())
	api.GET("/users", m.ListUsers)
	api.GET("/me", m.Me)
}

// Register は /auth/register のハンドラーです。セッションは作りません。
func (m *Manager) Register(c *gin.Context) {
	const op = "register"

	req, err := bindCredentials(c)
	if err != nil {
		m.fail(c, op, err)
		return
	}
	if req.Username == "" {
		m.fail(c, op, ErrUsernameRequired)
		return
	}

	ctx := c.Request.Context()
	if err := m.usernameMustBeFree(ctx, req.Username); err != nil {
		m.fail(c, op, err)
		return
	}
	password, err := passwordLengthPolicy(req.Password)
	if err != nil {
		m.fail(c, op, err)
		return
	}

	digest, err := m.hasher.Hash(password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		m.fail(c, op, ErrInvalidInput)
		return
	}
	if err != nil {
		m.fail(c, op, err)
		return
	}

	created, err := m.users.Insert(ctx, &users.User{Username: req.Username, PasswordHash: digest})
	if err != nil {
		m.fail(c, op, err)
		return
	}

	m.metrics.Observe(op, outcomeOf(nil))
	c.JSON(http.StatusCreated, gin.H{
		"id":       created.ID,
		"username": created.Username,
	})
}

// Login は /auth/login のハンドラーです。
// 既存のセッションは破棄し、新しいIDでセッションを発行します。
func (m *Manager) Login(c *gin.Context) {
	const op = "login"

	req, err := bindCredentials(c)
	if err != nil {
		m.fail(c, op, err)
		return
	}
	if req.Username == "" || req.Password == nil {
		m.fail(c, op, ErrInvalidCredentials)
		return
	}

	user, err := m.usernameMustExist(c.Request.Context(), req.Username)
	if err != nil {
		m.fail(c, op, err)
		return
	}
	if !m.hasher.Verify(*req.Password, user.PasswordHash) {
		m.fail(c, op, ErrInvalidCredentials)
		return
	}

	if _, err := m.requireSession(c); err != nil && !errors.Is(err, ErrUnauthenticated) {
		m.fail(c, op, err)
		return
	}

	sess := sessions.Default(c)
	sess.Clear()
	sess.Set(session.UserKey, session.User{ID: user.ID, Username: user.Username})
	if err := sess.Save(); err != nil {
		m.fail(c, op, err)
		return
	}

	m.metrics.Observe(op, outcomeOf(nil))
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Welcome %s!", user.Username),
	})
}

// Logout は /auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	const op = "logout"

	_, err := m.requireSession(c)
	if errors.Is(err, ErrUnauthenticated) {
		m.metrics.Observe(op, "no_session")
		c.JSON(http.StatusOK, gin.H{"message": "no session"})
		return
	}
	if err != nil {
		m.fail(c, op, err)
		return
	}

	expired := m.cookie
	expired.MaxAge = -1

	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(expired)
	if err := sess.Save(); err != nil {
		m.fail(c, op, err)
		return
	}

	m.metrics.Observe(op, outcomeOf(nil))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// RequireSession はセッションを検証するミドルウェアを返します。
func (m *Manager) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := m.requireSession(c)
		if err != nil {
			m.fail(c, "authorize", err)
			return
		}

		if m.rolling {
			if err := m.sessions.Renew(c.Request, c.Writer, m.cookieName); err != nil {
				m.fail(c, "authorize", err)
				return
			}
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser は RequireSession が保存したユーザーを返します。
func CurrentUser(c *gin.Context) (session.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return session.User{}, false
	}
	user, ok := v.(session.User)
	return user, ok
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ListUsers は /api/users のハンドラーです。パスワードハッシュは返しません。
func (m *Manager) ListUsers(c *gin.Context) {
	all, err := m.users.List(c.Request.Context())
	if err != nil {
		m.fail(c, "list_users", err)
		return
	}

	resp := make([]userResponse, 0, len(all))
	for _, u := range all {
		resp = append(resp, userResponse{ID: u.ID, Username: u.Username})
	}
	c.JSON(http.StatusOK, resp)
}

// Me は /api/me のハンドラーです。
func (m *Manager) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		m.fail(c, "me", ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

func (m *Manager) fail(c *gin.Context, op string, err error) {
	m.metrics.Observe(op, outcomeOf(err))
	_ = c.Error(err)
	c.Abort()
}
