package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SBCNTR_CONFIG_FILE", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("SBCNTR_ENABLE_TRACING", "")

	cfg, err := LoadConfig("test-token")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.SFN.TaskToken != "test-token" {
		t.Errorf("TaskToken = %v, want %v", cfg.SFN.TaskToken, "test-token")
	}
	if cfg.DB.Host != "localhost" || cfg.DB.Port != 5432 {
		t.Errorf("DB = %+v, want localhost:5432", cfg.DB)
	}
	if cfg.Reconcile.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %v, want 3", cfg.Reconcile.RetryAttempts)
	}
	if cfg.Reconcile.RetryBaseDelay != 200*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 200ms", cfg.Reconcile.RetryBaseDelay)
	}
	if cfg.Reconcile.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", cfg.Reconcile.Timeout)
	}
	if cfg.Notification.Queue != QueuePostgres {
		t.Errorf("Queue = %v, want %v", cfg.Notification.Queue, QueuePostgres)
	}
	if !cfg.Notification.ShowAlert || !cfg.Notification.PlaySound || !cfg.Notification.SetBadge {
		t.Errorf("Notification = %+v, want all enabled", cfg.Notification)
	}
	if cfg.EnableTracing {
		t.Error("EnableTracing should be false by default")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  addr: ":9090"
reconcile:
  timezone: Asia/Tokyo
  retry_attempts: 5
notification:
  queue: memory
  play_sound: false
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("ENV", "")
	t.Setenv("SBCNTR_CONFIG_FILE", path)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SBCNTR_RECONCILE_RETRY_ATTEMPTS", "7")
	t.Setenv("RECONCILE_USER_IDS", "user1, user2")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %v, want :9090", cfg.Server.Addr)
	}
	if cfg.DB.Host != "db.internal" || cfg.DB.Port != 6543 {
		t.Errorf("DB = %+v, want db.internal:6543", cfg.DB)
	}
	// 環境変数が設定ファイルより優先される
	if cfg.Reconcile.RetryAttempts != 7 {
		t.Errorf("RetryAttempts = %v, want 7", cfg.Reconcile.RetryAttempts)
	}
	if cfg.Notification.Queue != QueueMemory {
		t.Errorf("Queue = %v, want %v", cfg.Notification.Queue, QueueMemory)
	}
	if cfg.Notification.PlaySound {
		t.Error("PlaySound should be overridden to false")
	}
	if len(cfg.Reconcile.UserIDs) != 2 || cfg.Reconcile.UserIDs[0] != "user1" || cfg.Reconcile.UserIDs[1] != "user2" {
		t.Errorf("UserIDs = %v, want [user1 user2]", cfg.Reconcile.UserIDs)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Asia/Tokyo" {
		t.Errorf("Location() = %v, want Asia/Tokyo", loc)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Reconcile.Timezone = "UTC"
		cfg.Reconcile.RetryAttempts = 1
		cfg.Reconcile.Timeout = time.Minute
		cfg.Notification.Queue = QueueMemory
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "正常", mutate: func(*Config) {}, wantErr: false},
		{name: "不正なタイムゾーン", mutate: func(c *Config) { c.Reconcile.Timezone = "Mars/Base" }, wantErr: true},
		{name: "リトライ回数0", mutate: func(c *Config) { c.Reconcile.RetryAttempts = 0 }, wantErr: true},
		{name: "タイムアウト0", mutate: func(c *Config) { c.Reconcile.Timeout = 0 }, wantErr: true},
		{name: "不明なキュー", mutate: func(c *Config) { c.Notification.Queue = "redis" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
