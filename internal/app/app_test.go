package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/shelfman/internal/config"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://127.0.0.1:8080")
	t.Setenv("CREDENTIAL_STORE", "memory")
	t.Setenv("LOG_LEVEL", "info")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.APIBaseURL != "http://127.0.0.1:8080" {
		t.Errorf("APIBaseURL = %q, want http://127.0.0.1:8080", cfg.APIBaseURL)
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_HonorsLogLevel(t *testing.T) {
	t.Setenv("CREDENTIAL_STORE", "memory")
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Warn("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("WARN should be filtered at LOG_LEVEL=error, got %s", buf.String())
	}
}

func TestInit_WithMissingBackendURL_ReturnsError(t *testing.T) {
	t.Setenv("CREDENTIAL_STORE", "redis")
	t.Setenv("REDIS_URL", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing REDIS_URL, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://shelfman:secret@db:5432/shelfman?sslmode=disable")
	if bytes.Contains([]byte(got), []byte("secret")) {
		t.Errorf("password should be masked: %s", got)
	}
	if got != "postgres://shelfman:xxxxx@db:5432/shelfman?sslmode=disable" {
		t.Errorf("maskDatabaseURL = %q", got)
	}
	if maskDatabaseURL("not a url") != "***" {
		t.Error("unparsable URL should be fully masked")
	}
}

func TestParseLoanStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"borrowing", "BORROWING"},
		{"OVERDUE", "OVERDUE"},
		{"1", "RETURNED"},
		{"3", "RENEWED"},
	}
	for _, tt := range tests {
		got, err := parseLoanStatus(tt.in)
		if err != nil {
			t.Errorf("parseLoanStatus(%q) returned error: %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("parseLoanStatus(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"lost", "4", "-1"} {
		if _, err := parseLoanStatus(bad); err == nil {
			t.Errorf("parseLoanStatus(%q) should fail", bad)
		}
	}
}

func TestStartBackgroundJobs_DisabledReturnsImmediately(t *testing.T) {
	svc := &services{
		cfg:    &config.Config{LoanWatchInterval: 0, CleanupInterval: time.Hour},
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}

	done := make(chan struct{})
	go func() {
		startBackgroundJobs(context.Background(), svc).Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("無効なジョブしかない場合は待たずに戻るべき")
	}
}
