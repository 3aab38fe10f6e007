package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// クレデンシャルキャッシュのバックエンド種別。
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote API
	APIBaseURL     string
	RequestTimeout time.Duration
	RateLimitRPS   float64 // 0以下で無制限
	RateLimitBurst int

	// Credential cache
	CredentialStore   string
	CredentialFile    string
	CredentialProfile string
	CredentialTTL     time.Duration // 0は無期限
	RedisURL          string
	RedisKeyPrefix    string
	DatabaseURL       string

	// Borrow policy
	MaxBorrowDays int
	MaxRenewDays  int
	MaxRenewCount int
	Location      *time.Location

	// Local agent
	ServerHost            string
	ServerPort            string
	CORSAllowedOrigin     string
	CookieSecure          bool
	AgentRateLimitGeneral int // req/min
	AgentRateLimitLogin   int // req/min

	// Background jobs
	LoanWatchInterval time.Duration // 0以下で無効
	LoanDueSoon       time.Duration
	CleanupInterval   time.Duration

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 選択したバックエンドに必要な環境変数が未設定の場合や、値が解釈できない場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "http://localhost:8080"), "/")
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("API_BASE_URL must be an absolute http(s) URL: %q", cfg.APIBaseURL)
	}

	cfg.CredentialStore = strings.ToLower(getEnvString("CREDENTIAL_STORE", StoreFile))

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// Required fields for the selected backend
	var missing []string

	switch cfg.CredentialStore {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("CREDENTIAL_STORE must be one of file, memory, redis, postgres: %q", cfg.CredentialStore)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	tz := getEnvString("TIMEZONE", "")
	cfg.Location = time.Local
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("failed to load TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 15*time.Second)
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 10)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.CredentialFile = getEnvString("CREDENTIAL_FILE", defaultCredentialFile())
	cfg.CredentialProfile = getEnvString("CREDENTIAL_PROFILE", "default")
	cfg.CredentialTTL = getEnvDuration("CREDENTIAL_TTL", 0)
	cfg.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "shelfman:")
	cfg.MaxBorrowDays = getEnvInt("MAX_BORROW_DAYS", 365)
	cfg.MaxRenewDays = getEnvInt("MAX_RENEW_DAYS", 90)
	cfg.MaxRenewCount = getEnvInt("MAX_RENEW_COUNT", 2)
	cfg.ServerHost = getEnvString("SERVER_HOST", "127.0.0.1")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.AgentRateLimitGeneral = getEnvInt("AGENT_RATE_LIMIT_GENERAL", 120)
	cfg.AgentRateLimitLogin = getEnvInt("AGENT_RATE_LIMIT_LOGIN", 5)
	cfg.LoanWatchInterval = getEnvDuration("LOAN_WATCH_INTERVAL", 15*time.Minute)
	cfg.LoanDueSoon = getEnvDuration("LOAN_DUE_SOON", 72*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CREDENTIAL_CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// ListenAddr はローカルエージェントの待ち受けアドレスを返す。
func (c *Config) ListenAddr() string {
	return c.ServerHost + ":" + c.ServerPort
}

// defaultCredentialFile はユーザー設定ディレクトリ配下のクレデンシャルファイルのパスを返す。
func defaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".shelfman", "credentials.json")
	}
	return filepath.Join(dir, "shelfman", "credentials.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
