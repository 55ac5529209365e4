package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/yourusername/sessionauth/internal/logging"
)

// Error はクライアントに返す認証エラーです。
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrUnauthenticated    = &Error{Code: "UNAUTHENTICATED", Status: http.StatusUnauthorized, Message: "You shall not pass!"}
	ErrUsernameTaken      = &Error{Code: "USERNAME_TAKEN", Status: http.StatusUnprocessableEntity, Message: "Username taken"}
	ErrInvalidCredentials = &Error{Code: "INVALID_CREDENTIALS", Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	ErrWeakPassword       = &Error{Code: "WEAK_PASSWORD", Status: http.StatusUnprocessableEntity, Message: "Password must be longer than 3 chars"}
	ErrUsernameRequired   = &Error{Code: "USERNAME_REQUIRED", Status: http.StatusUnprocessableEntity, Message: "Username is required"}
	ErrInvalidInput       = &Error{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Message: "Send username and password as JSON"}
)

const codeInternal = "INTERNAL_ERROR"

// ErrorHandler は c.Error で積まれた最後のエラーを JSON で返すミドルウェアです。
// *Error 以外は 500 として扱い、ログに残します。
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		respondWithError(c, logger, c.Errors.Last().Err)
	}
}

// Recovery はパニックを 500 の JSON レスポンスに変換します。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		respondWithError(c, logger, oops.Code("PANIC").Errorf("panic recovered: %v", recovered))
		c.Abort()
	})
}

func respondWithError(c *gin.Context, logger *slog.Logger, err error) {
	var authErr *Error
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, gin.H{
			"code":    authErr.Code,
			"message": authErr.Message,
		})
		return
	}

	logging.LogError(logger, "request failed", err,
		"request_id", logging.RequestID(c),
		"path", c.Request.URL.Path,
	)

	body := gin.H{
		"code":    codeInternal,
		"message": "Internal server error",
	}
	if gin.IsDebugging() {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusInternalServerError, body)
}

// outcomeOf はメトリクス用に結果ラベルを返します。
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return codeInternal
}
