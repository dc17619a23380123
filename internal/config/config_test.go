package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PushTimeout != 2*time.Second {
		t.Fatalf("PushTimeout = %s", cfg.PushTimeout)
	}
	if cfg.MaxContentLength != 4000 || cfg.PresenceShards != 32 || cfg.HistoryPageSize != 50 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.ResetPresenceOnStart {
		t.Fatal("ResetPresenceOnStart should default to true")
	}
	if cfg.RabbitQueue != "presence_events" {
		t.Fatalf("RabbitQueue = %q", cfg.RabbitQueue)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("DB_DSN", "sqlite:test.db")
	t.Setenv("PUSH_TIMEOUT", "750ms")
	t.Setenv("MAX_CONTENT_LENGTH", "280")
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("HISTORY_PAGE_SIZE", "-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.DBDSN != "sqlite:test.db" {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.PushTimeout != 750*time.Millisecond {
		t.Fatalf("PushTimeout = %s", cfg.PushTimeout)
	}
	if cfg.MaxContentLength != 280 {
		t.Fatalf("MaxContentLength = %d", cfg.MaxContentLength)
	}
	if cfg.WorkerConcurrency != 50 {
		t.Fatalf("WorkerConcurrency = %d, want clamp to 50", cfg.WorkerConcurrency)
	}
	if cfg.HistoryPageSize != 50 {
		t.Fatalf("HistoryPageSize = %d, want default", cfg.HistoryPageSize)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("PUSH_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
