package protection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rickchristie/mysql-mcp/internal/sqltree"
)

// Kind classifies why a query was denied.
type Kind int

const (
	KindNone Kind = iota
	KindParseFailure
	KindDisallowedCommand
	KindDangerousConstruct
	KindNestedDangerousOperation
	KindDatabaseScopeViolation
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindParseFailure:
		return "parse_failure"
	case KindDisallowedCommand:
		return "disallowed_command"
	case KindDangerousConstruct:
		return "dangerous_construct"
	case KindNestedDangerousOperation:
		return "nested_dangerous_operation"
	case KindDatabaseScopeViolation:
		return "database_scope_violation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ReasonUnparseable is the reason given for input that cannot be parsed or
// classified.
const ReasonUnparseable = "unparseable statement"

// Config is the protection checker's own config type.
type Config struct {
	// AllowDangerousOperations disables the command, construct and nested
	// checks. The database scope check always runs.
	AllowDangerousOperations bool
	// Database is the only database queries may reference. Required.
	Database string
	// SafeCommands are the commands allowed when dangerous operations are off.
	// Nil means DefaultSafeCommands.
	SafeCommands []string
	// DangerousDML are the statement verbs rejected inside a read statement.
	// Nil means DefaultDangerousDML.
	DangerousDML []string
	// Constructs are checked in order against SELECT statements. Nil means
	// DefaultConstructs.
	Constructs []Construct
}

// DefaultSafeCommands are the read-only commands allowed by default.
var DefaultSafeCommands = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

// DefaultDangerousDML are the verbs that fail a read statement when found
// anywhere in its tree.
var DefaultDangerousDML = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
	"REPLACE", "GRANT", "REVOKE", "FLUSH", "RESET", "KILL", "SET", "LOAD",
	"LOCK", "UNLOCK",
}

// Verdict is the outcome of classifying a query. Reason and Kind are set only
// when Allowed is false.
type Verdict struct {
	Allowed bool
	Reason  string
	Kind    Kind
}

func allow() Verdict {
	return Verdict{Allowed: true}
}

func deny(kind Kind, reason string) Verdict {
	return Verdict{Kind: kind, Reason: reason}
}

// Violation is the error returned by Check for a denied query.
type Violation struct {
	Kind   Kind
	Reason string
	// Err is the parser error behind a KindParseFailure, if any.
	Err error
}

func (v *Violation) Error() string {
	return v.Reason
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// Checker validates SQL statements against protection rules. It is immutable
// after NewChecker and safe for concurrent use.
type Checker struct {
	allowDangerous bool
	database       string
	safe           map[string]bool
	dangerous      map[string]bool
	constructs     []compiledConstruct
}

// NewChecker creates a new Checker with the given config. It panics if
// Database is empty or a construct pattern does not compile.
func NewChecker(config Config) *Checker {
	database := strings.TrimSpace(config.Database)
	if database == "" {
		panic("protection: Database is required")
	}

	safe := config.SafeCommands
	if safe == nil {
		safe = DefaultSafeCommands
	}
	dangerous := config.DangerousDML
	if dangerous == nil {
		dangerous = DefaultDangerousDML
	}
	constructs := config.Constructs
	if constructs == nil {
		constructs = DefaultConstructs
	}

	compiled := make([]compiledConstruct, 0, len(constructs))
	for i, cons := range constructs {
		re, err := regexp.Compile(cons.Pattern)
		if err != nil {
			panic(fmt.Sprintf("protection: constructs[%d]: invalid pattern %q: %v", i, cons.Pattern, err))
		}
		compiled = append(compiled, compiledConstruct{re: re, description: cons.Description})
	}

	return &Checker{
		allowDangerous: config.AllowDangerousOperations,
		database:       database,
		safe:           upperSet(safe),
		dangerous:      upperSet(dangerous),
		constructs:     compiled,
	}
}

func upperSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToUpper(strings.TrimSpace(w))] = true
	}
	return m
}

// Database returns the configured database name.
func (c *Checker) Database() string {
	return c.database
}

// Classify returns the verdict for sql. Every statement must pass; the first
// failing statement decides the reason. Input that yields no statement is
// denied.
func (c *Checker) Classify(sql string) Verdict {
	stmts, err := sqltree.Parse(sql)
	if err != nil || len(stmts) == 0 {
		return deny(KindParseFailure, ReasonUnparseable)
	}
	for _, stmt := range stmts {
		if v := c.classifyStatement(stmt); !v.Allowed {
			return v
		}
	}
	return allow()
}

// Check parses sql and applies the protection rules.
// Returns nil if allowed, a *Violation if blocked.
func (c *Checker) Check(sql string) error {
	stmts, err := sqltree.Parse(sql)
	if err != nil {
		return &Violation{Kind: KindParseFailure, Reason: ReasonUnparseable, Err: err}
	}
	if len(stmts) == 0 {
		return &Violation{Kind: KindParseFailure, Reason: ReasonUnparseable, Err: ErrEmptyStatement}
	}
	for _, stmt := range stmts {
		if v := c.classifyStatement(stmt); !v.Allowed {
			return &Violation{Kind: v.Kind, Reason: v.Reason}
		}
	}
	return nil
}

func (c *Checker) classifyStatement(stmt *sqltree.Statement) Verdict {
	if !c.allowDangerous {
		cmd, err := CommandOf(stmt)
		if err != nil {
			return deny(KindParseFailure, ReasonUnparseable)
		}
		if !c.safe[cmd] {
			return deny(KindDisallowedCommand, "disallowed command: "+cmd)
		}

		switch cmd {
		case "SELECT":
			if desc, found := scanConstructs(stmt.Normalized(), c.constructs); found {
				return deny(KindDangerousConstruct, desc)
			}
			if kw, found := scanNested(stmt, c.dangerous); found {
				return deny(KindNestedDangerousOperation, "nested dangerous operation: "+kw)
			}
		case "EXPLAIN", "DESCRIBE", "DESC":
			// EXPLAIN ANALYZE runs the explained statement.
			if kw, found := scanNested(stmt, c.dangerous); found {
				return deny(KindNestedDangerousOperation, "nested dangerous operation: "+kw)
			}
		}
	}

	if reason, found := scanScope(stmt, c.database); found {
		return deny(KindDatabaseScopeViolation, reason)
	}
	return allow()
}
