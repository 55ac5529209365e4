// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ストアの実装種別
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string `koanf:"port"`     // APIサーバーのポート番号
	GinMode string `koanf:"gin_mode"` // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"` // CORS許可オリジン（カンマ区切り）

	// ログ設定
	LogFormat string `koanf:"log_format"` // json または text
	LogLevel  string `koanf:"log_level"`  // debug, info, warn, error

	// データベース設定
	DatabaseURL string `koanf:"database_url"` // PostgreSQL接続文字列
	AutoMigrate bool   `koanf:"auto_migrate"` // 起動時にマイグレーションを適用するか
	UserStore   string `koanf:"user_store"`   // postgres または memory

	// セッション設定
	SessionStore          string `koanf:"session_store"`           // redis, postgres, memory
	SessionRedisURL       string `koanf:"session_redis_url"`       // Redisセッションストアの接続URL
	SessionSecret         string `koanf:"session_secret"`          // クッキー署名用の秘密鍵
	SessionCookieName     string `koanf:"session_cookie_name"`     // セッションクッキー名
	SessionTTLMinutes     int    `koanf:"session_ttl_minutes"`     // セッションの有効期限（分）
	SessionCookieSecure   bool   `koanf:"session_cookie_secure"`   // Secure属性
	SessionCookieHTTPOnly bool   `koanf:"session_cookie_httponly"` // HttpOnly属性
	SessionSameSite       string `koanf:"session_same_site"`       // lax, strict, none
	SessionRolling        bool   `koanf:"session_rolling"`         // リクエスト毎に有効期限を延長するか

	// 期限切れセッション掃除ジョブ設定
	QueueRedisURL        string `koanf:"queue_redis_url"`        // Asynq用Redis接続URL
	SweepIntervalMinutes int    `koanf:"sweep_interval_minutes"` // 掃除ジョブの実行間隔（分）

	// パスワードハッシュ設定
	BcryptCost int `koanf:"bcrypt_cost"`

	// メトリクス
	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
// path が空でなければ YAML ファイルの値で上書きします。
func Load(path string) (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	ginMode := getEnv("GIN_MODE", "debug")

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "9000"),
		GinMode: ginMode,

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// ログ設定
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),

		// データベース設定
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AutoMigrate: getEnvAsBool("AUTO_MIGRATE", false),
		UserStore:   getEnv("USER_STORE", StoreMemory),

		// セッション設定
		SessionStore:          getEnv("SESSION_STORE", StoreMemory),
		SessionRedisURL:       getEnv("SESSION_REDIS_URL", "redis://127.0.0.1:6379/0"),
		SessionSecret:         getEnv("SESSION_SECRET", ""),
		SessionCookieName:     getEnv("SESSION_COOKIE_NAME", "chocolatechip"),
		SessionTTLMinutes:     getEnvAsInt("SESSION_TTL_MINUTES", 10),
		SessionCookieSecure:   getEnvAsBool("SESSION_COOKIE_SECURE", ginMode == "release"),
		SessionCookieHTTPOnly: getEnvAsBool("SESSION_COOKIE_HTTPONLY", true),
		SessionSameSite:       getEnv("SESSION_SAME_SITE", "lax"),
		SessionRolling:        getEnvAsBool("SESSION_ROLLING", false),

		// 掃除ジョブ設定
		QueueRedisURL:        getEnv("QUEUE_REDIS_URL", ""),
		SweepIntervalMinutes: getEnvAsInt("SWEEP_INTERVAL_MINUTES", 10),

		BcryptCost: getEnvAsInt("BCRYPT_COST", 8),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if path != "" {
		if err := overlayFile(config, path); err != nil {
			return nil, err
		}
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// overlayFile は YAML ファイルに書かれたキーだけを上書きします。
func overlayFile(config *Config, path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.UserStore {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("USER_STORE must be one of memory, postgres: got %q", c.UserStore)
	}
	switch c.SessionStore {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("SESSION_STORE must be one of memory, postgres, redis: got %q", c.SessionStore)
	}
	switch strings.ToLower(c.SessionSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("SESSION_SAME_SITE must be one of lax, strict, none: got %q", c.SessionSameSite)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME is required")
	}
	if (c.UserStore == StorePostgres || c.SessionStore == StorePostgres) && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when a postgres store is selected")
	}
	if c.SessionStore == StoreRedis && c.SessionRedisURL == "" {
		return fmt.Errorf("SESSION_REDIS_URL is required when SESSION_STORE=redis")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in release mode")
		}
		if c.UserStore == StoreMemory {
			return fmt.Errorf("USER_STORE=memory is not allowed in release mode")
		}
	}

	return nil
}

// SessionTTL はセッションの有効期限を返します。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// SweepInterval は掃除ジョブの実行間隔を返します。
func (c *Config) SweepInterval() time.Duration {
	minutes := c.SweepIntervalMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// SweepEnabled は期限切れセッションの定期掃除を行うかどうかを返します。
func (c *Config) SweepEnabled() bool {
	return c.SessionStore == StorePostgres && c.QueueRedisURL != ""
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
