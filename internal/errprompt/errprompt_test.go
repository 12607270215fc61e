package errprompt

import (
	"strings"
	"testing"
)

func TestMatchTableNotExist(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: `(?i)table .* doesn't exist`, Message: "The table does not exist. Use list_tables to see available tables."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.Match("Error 1146 (42S02): Table 'shop.foo' doesn't exist").Prompt()
	if got != "The table does not exist. Use list_tables to see available tables." {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestNoMatch(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: `(?i)command denied`, Message: "privileges"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := m.Match("some unrelated error")
	if res.Prompt() != "" || res.Patterns != nil {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestMultipleMatchesKeepOrder(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{
		{Pattern: `timeout`, Message: "first"},
		{Pattern: `never`, Message: "skipped"},
		{Pattern: `(?i)TIMEOUT`, Message: "second"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := m.Match("query timeout")
	if res.Prompt() != "first\nsecond" {
		t.Fatalf("unexpected prompt: %q", res.Prompt())
	}
	if len(res.Patterns) != 2 || res.Patterns[0] != "timeout" || res.Patterns[1] != "(?i)TIMEOUT" {
		t.Fatalf("unexpected patterns: %v", res.Patterns)
	}
}

func TestInvalidPattern(t *testing.T) {
	t.Parallel()
	_, err := NewMatcher([]Rule{{Pattern: "ok", Message: "a"}, {Pattern: "[invalid", Message: "b"}})
	if err == nil {
		t.Fatal("expected error for invalid regex, got nil")
	}
	if !strings.Contains(err.Error(), "rule 1") {
		t.Fatalf("expected rule index in error, got %q", err.Error())
	}
}

func TestAnnotate(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher([]Rule{{Pattern: `Error 1054\b`, Message: "Use describe_table."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := m.Annotate("Error 1054 (42S22): Unknown column 'x' in 'field list'")
	if got != "Error 1054 (42S22): Unknown column 'x' in 'field list'\n\nUse describe_table." {
		t.Fatalf("unexpected annotation: %q", got)
	}
	if got := m.Annotate("other"); got != "other" {
		t.Fatalf("expected unchanged message, got %q", got)
	}
}

func TestDefaultRulesCompileAndMatch(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher(DefaultRules())
	if err != nil {
		t.Fatalf("default rules do not compile: %v", err)
	}
	cases := map[string]string{
		"Error 1146 (42S02): Table 'shop.nope' doesn't exist":                  "list_tables",
		"Error 1054 (42S22): Unknown column 'x' in 'field list'":               "describe_table",
		"Error 1142 (42000): SELECT command denied to user 'u'@'h' for table": "privileges",
		"context deadline exceeded":                                            "timed out",
		"query rejected: disallowed command: DROP":                             "safety policy",
	}
	for msg, want := range cases {
		if got := m.Match(msg).Prompt(); !strings.Contains(got, want) {
			t.Errorf("Match(%q) = %q, want it to contain %q", msg, got, want)
		}
	}
}

func TestEmptyRules(t *testing.T) {
	t.Parallel()
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Match("anything").Prompt(); got != "" {
		t.Fatalf("expected empty prompt, got %q", got)
	}
}
