package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/uma-arai/sbcntr-reminder/internal/common/database"
)

const envPrefix = "SBCNTR_"

// 通知キューの保存先
const (
	QueuePostgres = "postgres"
	QueueMemory   = "memory"
)

type Config struct {
	DB  database.Config `koanf:"db"`
	SFN struct {
		TaskToken string `koanf:"-"`
	} `koanf:"-"`
	Server       ServerConfig       `koanf:"server"`
	Auth         AuthConfig         `koanf:"auth"`
	Reconcile    ReconcileConfig    `koanf:"reconcile"`
	Notification NotificationConfig `koanf:"notification"`

	EnableTracing bool `koanf:"-"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

type ReconcileConfig struct {
	Timezone       string        `koanf:"timezone"`
	RetryAttempts  int           `koanf:"retry_attempts"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	Timeout        time.Duration `koanf:"timeout"`
	UserIDs        []string      `koanf:"user_ids"`
}

type NotificationConfig struct {
	Queue     string `koanf:"queue"`
	ShowAlert bool   `koanf:"show_alert"`
	PlaySound bool   `koanf:"play_sound"`
	SetBadge  bool   `koanf:"set_badge"`
}

// 既存の環境変数名と設定キーの対応
var legacyEnvKeys = map[string]string{
	"DB_HOST":                    "db.host",
	"DB_PORT":                    "db.port",
	"DB_USERNAME":                "db.username",
	"DB_PASSWORD":                "db.password",
	"DB_NAME":                    "db.name",
	"DB_SSL_MODE":                "db.sslmode",
	"SERVER_ADDR":                "server.addr",
	"AUTH_JWT_SECRET":            "auth.jwt_secret",
	"RECONCILE_TIMEZONE":         "reconcile.timezone",
	"RECONCILE_RETRY_ATTEMPTS":   "reconcile.retry_attempts",
	"RECONCILE_RETRY_BASE_DELAY": "reconcile.retry_base_delay",
	"RECONCILE_TIMEOUT":          "reconcile.timeout",
	"RECONCILE_USER_IDS":         "reconcile.user_ids",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"db.host":                    "localhost",
		"db.port":                    5432,
		"db.username":                "sbcntrapp",
		"db.password":                "password",
		"db.name":                    "sbcntrapp",
		"db.sslmode":                 "",
		"server.addr":                ":8080",
		"auth.jwt_secret":            "",
		"reconcile.timezone":         "UTC",
		"reconcile.retry_attempts":   3,
		"reconcile.retry_base_delay": "200ms",
		"reconcile.timeout":          "2m",
		"notification.queue":         QueuePostgres,
		"notification.show_alert":    true,
		"notification.play_sound":    true,
		"notification.set_badge":     true,
	}
}

// LoadConfig は設定を読み込みます
// 優先順位は 既定値 < 設定ファイル(SBCNTR_CONFIG_FILE) < 環境変数 です
func LoadConfig(taskToken string) (*Config, error) {
	if IsLocal() {
		// .envが無い場合はそのまま環境変数を使う
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to load .env file: %v", err)
		}
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(envPrefix + "CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(confmap.Provider(legacyEnv(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// SBCNTR_RECONCILE_RETRY_ATTEMPTS -> reconcile.retry_attempts
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SFN.TaskToken = taskToken
	cfg.Reconcile.UserIDs = splitUserIDs(cfg.Reconcile.UserIDs)

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv(envPrefix + "ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値を検証します
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Reconcile.RetryAttempts <= 0 {
		return fmt.Errorf("reconcile.retry_attempts must be positive")
	}
	if c.Reconcile.Timeout <= 0 {
		return fmt.Errorf("reconcile.timeout must be positive")
	}
	switch c.Notification.Queue {
	case QueuePostgres, QueueMemory:
	default:
		return fmt.Errorf("unknown notification.queue: %s (supported: %s, %s)",
			c.Notification.Queue, QueuePostgres, QueueMemory)
	}
	return nil
}

// Location は暦日の判定に使うタイムゾーンを返します
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Reconcile.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile.timezone %q: %w", c.Reconcile.Timezone, err)
	}
	return loc, nil
}

// IsLocal はENV=LOCALで実行されているかを返します
func IsLocal() bool {
	return os.Getenv("ENV") == "LOCAL"
}

func legacyEnv() map[string]interface{} {
	values := make(map[string]interface{})
	for envKey, key := range legacyEnvKeys {
		if value := os.Getenv(envKey); value != "" {
			values[key] = value
		}
	}
	return values
}

// "user1,user2" のようなカンマ区切りも受け付ける
func splitUserIDs(raw []string) []string {
	var ids []string
	for _, v := range raw {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
