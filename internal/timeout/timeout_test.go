package timeout

import (
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		DefaultTimeout: 30 * time.Second,
		Rules: []Rule{
			{Pattern: `(?i)information_schema`, Timeout: 5 * time.Second},
			{Pattern: `(?i)\bJOIN\b`, Timeout: 60 * time.Second},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestMatchFirstRule(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	got := m.GetTimeout("SELECT * FROM information_schema.TABLES")
	if got != 5*time.Second {
		t.Errorf("expected 5s, got %v", got)
	}
}

func TestStopOnFirstMatch(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	got := m.GetTimeout("SELECT * FROM information_schema.COLUMNS c JOIN information_schema.TABLES t")
	if got != 5*time.Second {
		t.Errorf("expected 5s (first match wins), got %v", got)
	}
}

func TestDefaultTimeout(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	if got := m.GetTimeout("SELECT 1"); got != 30*time.Second {
		t.Errorf("expected 30s (default), got %v", got)
	}
}

func TestNoRules(t *testing.T) {
	t.Parallel()
	m, err := NewManager(Config{DefaultTimeout: 30 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.GetTimeout("SELECT 1"); got != 30*time.Second {
		t.Errorf("expected 30s (default), got %v", got)
	}
}

func TestGetTimeoutWithPattern_Match(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	timeout, pattern := m.GetTimeoutWithPattern("select * from tasks t join users u on t.owner = u.id")
	if timeout != 60*time.Second {
		t.Errorf("expected 60s, got %v", timeout)
	}
	if pattern != `(?i)\bJOIN\b` {
		t.Errorf("unexpected pattern %q", pattern)
	}
}

func TestGetTimeoutWithPattern_Default(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	timeout, pattern := m.GetTimeoutWithPattern("SELECT 1")
	if timeout != 30*time.Second {
		t.Errorf("expected 30s (default), got %v", timeout)
	}
	if pattern != "" {
		t.Errorf("expected empty pattern for default timeout, got %q", pattern)
	}
}

func TestNewManagerErrorsOnInvalidRegex(t *testing.T) {
	t.Parallel()
	_, err := NewManager(Config{
		DefaultTimeout: 30 * time.Second,
		Rules:          []Rule{{Pattern: `[invalid`, Timeout: 5 * time.Second}},
	})
	if err == nil {
		t.Fatal("expected error for invalid regex pattern")
	}
	if !strings.Contains(err.Error(), "invalid regex pattern") || !strings.Contains(err.Error(), "[invalid") {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestNewManagerErrorsOnNonPositiveTimeouts(t *testing.T) {
	t.Parallel()
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error for zero default timeout")
	}
	_, err := NewManager(Config{
		DefaultTimeout: time.Second,
		Rules:          []Rule{{Pattern: "x", Timeout: 0}},
	})
	if err == nil || !strings.Contains(err.Error(), "rule 0") {
		t.Fatalf("expected rule 0 error, got %v", err)
	}
}
