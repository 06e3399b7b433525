package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MIN_FIELD_OF_VIEW", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("SEARCH_WORKERS", "")

	cfg := Load()

	if cfg.MinFieldOfView != 120 {
		t.Fatalf("expected 120 arcsec field-of-view floor, got %v", cfg.MinFieldOfView)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Fatalf("expected 60s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.SearchWorkers != 5 {
		t.Fatalf("expected 5 search workers, got %d", cfg.SearchWorkers)
	}
	if cfg.SearchIntervalDays != 60 {
		t.Fatalf("expected 60 day search intervals, got %d", cfg.SearchIntervalDays)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MIN_FIELD_OF_VIEW", "250.5")
	t.Setenv("POLL_MAX_ATTEMPTS", "12")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg := Load()

	if cfg.MinFieldOfView != 250.5 {
		t.Fatalf("expected 250.5, got %v", cfg.MinFieldOfView)
	}
	if cfg.PollMaxAttempts != 12 {
		t.Fatalf("expected 12, got %d", cfg.PollMaxAttempts)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker2:9092" {
		t.Fatalf("expected comma-split brokers, got %v", cfg.KafkaBrokers)
	}
}
