package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.TargetCount != 500 {
		t.Errorf("target_count = %d, want 500", cfg.App.TargetCount)
	}
	if cfg.App.ConcurrencyLimit != 5 {
		t.Errorf("concurrency_limit = %d, want 5", cfg.App.ConcurrencyLimit)
	}
	if cfg.App.BatchSize != 50 {
		t.Errorf("batch_size = %d, want 50", cfg.App.BatchSize)
	}
	if cfg.App.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want 2", cfg.App.MaxRetries)
	}
	if cfg.App.ScrollPatience != 3 {
		t.Errorf("scroll_patience = %d, want 3", cfg.App.ScrollPatience)
	}
	if cfg.App.GracePeriod != 30*time.Second {
		t.Errorf("grace_period = %v, want 30s", cfg.App.GracePeriod)
	}
	if cfg.Browser.PageTimeout != 60*time.Second {
		t.Errorf("page_timeout = %v, want 60s", cfg.Browser.PageTimeout)
	}
	if !cfg.Browser.Headless {
		t.Errorf("headless should default to true")
	}
}

func TestLoadFileWithPartialFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {
			"target_count": 25,
			"scroll_wait": "500ms"
		},
		"redis": {"addr": "localhost:6379"}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.TargetCount != 25 {
		t.Errorf("target_count = %d, want 25 from file", cfg.App.TargetCount)
	}
	if cfg.App.ScrollWait != 500*time.Millisecond {
		t.Errorf("scroll_wait = %v, want 500ms", cfg.App.ScrollWait)
	}
	// 未给出的字段回落到默认值
	if cfg.App.BatchSize != 50 {
		t.Errorf("batch_size = %d, want default 50", cfg.App.BatchSize)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadExplicitZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"app": {
			"max_retries": 0,
			"rate_limit": 0
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// 显式零值不被默认值覆盖：0 重试是单次尝试，0 速率是不限速
	if cfg.App.MaxRetries != 0 {
		t.Errorf("max_retries = %d, want explicit 0", cfg.App.MaxRetries)
	}
	if cfg.App.RateLimit != 0 {
		t.Errorf("rate_limit = %v, want explicit 0", cfg.App.RateLimit)
	}
	// 未写出的字段仍然回落默认
	if cfg.App.TargetCount != 500 {
		t.Errorf("target_count = %d, want default 500", cfg.App.TargetCount)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"app": {"grace_period": "not-a-duration"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_TARGET_COUNT", "42")
	t.Setenv("APP_GRACE_PERIOD", "10s")
	t.Setenv("APP_OVERFLOW_STORE", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BROWSER_HEADLESS", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.TargetCount != 42 {
		t.Errorf("target_count = %d, want env override 42", cfg.App.TargetCount)
	}
	if cfg.App.GracePeriod != 10*time.Second {
		t.Errorf("grace_period = %v, want 10s", cfg.App.GracePeriod)
	}
	if !cfg.App.OverflowStore {
		t.Errorf("overflow_store should be enabled by env")
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Browser.Headless {
		t.Errorf("headless should be disabled by env")
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	app := AppConfig{GracePeriod: 45 * time.Second, ScrollWait: 2 * time.Second}
	data, err := json.Marshal(app)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded AppConfig
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GracePeriod != app.GracePeriod || decoded.ScrollWait != app.ScrollWait {
		t.Errorf("round trip lost durations: %+v", decoded)
	}
}
