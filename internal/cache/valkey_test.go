package cache

import (
	"context"
	"testing"
	"time"
)

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(context.Background(), ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestNewValkeyProviderFailsFastWhenUnreachable(t *testing.T) {
	_, err := NewValkeyProvider(context.Background(), ValkeyConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected ping failure against closed port")
	}
}

func TestNormaliseDurations(t *testing.T) {
	cfg := ValkeyConfig{MaxRetries: -3}
	normaliseDurations(&cfg)
	if cfg.DialTimeout != 2*time.Second || cfg.ReadTimeout != 500*time.Millisecond || cfg.WriteTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxRetries != 0 {
		t.Fatalf("expected negative retries clamped to zero, got %d", cfg.MaxRetries)
	}
}
