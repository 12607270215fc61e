// Package errprompt attaches guidance for the calling agent to MySQL error
// messages, so that a failed query comes back with a hint on what to try next.
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule pairs an error message pattern with the guidance to return for it.
type Rule struct {
	Pattern string
	Message string
}

// DefaultRules cover the MySQL errors an agent most often runs into.
// Server error numbers are matched because go-sql-driver/mysql formats
// errors as "Error 1146 (42S02): Table 'x.y' doesn't exist".
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `Error 1146\b|(?i)table .* doesn't exist`, Message: "The table does not exist. Use list_tables to see the tables in the configured database."},
		{Pattern: `Error 1054\b|(?i)unknown column`, Message: "A column does not exist. Use describe_table to see the table's columns."},
		{Pattern: `Error 1064\b`, Message: "MySQL could not parse the query. Check the syntax against the MySQL reference and retry."},
		{Pattern: `Error (1142|1143|1044|1045)\b|(?i)command denied`, Message: "The configured MySQL user lacks privileges for this operation. Ask the user to check grants."},
		{Pattern: `Error 3024\b|(?i)maximum statement execution time exceeded|context deadline exceeded`, Message: "The query timed out. Add a LIMIT or a narrower WHERE clause."},
		{Pattern: `^query rejected: `, Message: "The query was rejected by the safety policy and was not sent to MySQL. Only read-only statements on the configured database are allowed."},
	}
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher checks error messages against patterns and returns guidance prompts.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: rule %d: invalid regex pattern %q: %w", i, r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Result holds every rule that matched an error message.
type Result struct {
	Messages []string
	Patterns []string
}

// Prompt joins the matched messages with newlines. Empty when nothing matched.
func (r Result) Prompt() string {
	return strings.Join(r.Messages, "\n")
}

// Match checks errMsg against all rules, top to bottom.
func (m *Matcher) Match(errMsg string) Result {
	var res Result
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			res.Messages = append(res.Messages, rule.message)
			res.Patterns = append(res.Patterns, rule.pattern.String())
		}
	}
	return res
}

// Annotate returns errMsg followed by the matched guidance, if any.
func (m *Matcher) Annotate(errMsg string) string {
	if prompt := m.Match(errMsg).Prompt(); prompt != "" {
		return errMsg + "\n\n" + prompt
	}
	return errMsg
}
