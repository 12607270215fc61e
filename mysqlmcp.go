package mysqlmcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/mysql-mcp/internal/errprompt"
	"github.com/rickchristie/mysql-mcp/internal/metrics"
	"github.com/rickchristie/mysql-mcp/internal/protection"
	"github.com/rickchristie/mysql-mcp/internal/timeout"
)

const (
	defaultMaxSQLLength    = 100000
	defaultMaxResultLength = 100000
)

// MysqlMcp is the core engine behind the execute_query, list_databases,
// list_tables and describe_table tools.
// All exported methods are safe for concurrent use from multiple goroutines.
type MysqlMcp struct {
	config     Config
	db         *sql.DB
	semaphore  chan struct{}
	checker    *protection.Checker
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	metrics    metrics.Recorder
	logger     zerolog.Logger
}

// Option is a functional option for New() and NewWithDB().
type Option func(*options)

type options struct {
	recorder metrics.Recorder
}

// WithMetrics reports verdicts and tool calls to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// New opens a MySQL pool for dsn and creates a MysqlMcp on it.
// Panics on invalid config. Returns error only for runtime failures
// (opening or pinging the pool).
func New(ctx context.Context, dsn string, config Config, logger zerolog.Logger, opts ...Option) (*MysqlMcp, error) {
	if dsn == "" {
		panic("mysqlmcp: dsn must be non-empty")
	}
	config = validateConfig(config)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}
	configurePool(db, config.Pool)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	return newEngine(db, config, logger, opts), nil
}

// NewWithDB creates a MysqlMcp on an existing pool. The pool's limits are left
// untouched. Panics on invalid config.
func NewWithDB(db *sql.DB, config Config, logger zerolog.Logger, opts ...Option) *MysqlMcp {
	if db == nil {
		panic("mysqlmcp: db must be non-nil")
	}
	return newEngine(db, validateConfig(config), logger, opts)
}

// validateConfig panics on invalid config and returns config with defaults
// applied.
func validateConfig(config Config) Config {
	if config.Database == "" {
		panic("mysqlmcp: database must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("mysqlmcp: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("mysqlmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.ListTablesTimeoutSeconds <= 0 {
		panic("mysqlmcp: query.list_tables_timeout_seconds must be > 0")
	}
	if config.Query.DescribeTableTimeoutSeconds <= 0 {
		panic("mysqlmcp: query.describe_table_timeout_seconds must be > 0")
	}

	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = defaultMaxSQLLength
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = defaultMaxResultLength
	}
	if config.Query.MaxSQLLength < 0 {
		panic("mysqlmcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("mysqlmcp: query.max_result_length must be > 0")
	}

	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("mysqlmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}
	parseOptionalDuration("pool.conn_max_lifetime", config.Pool.ConnMaxLifetime)
	parseOptionalDuration("pool.conn_max_idle_time", config.Pool.ConnMaxIdleTime)
	return config
}

func configurePool(db *sql.DB, pool PoolConfig) {
	db.SetMaxOpenConns(pool.MaxConns)
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if d := parseOptionalDuration("pool.conn_max_lifetime", pool.ConnMaxLifetime); d > 0 {
		db.SetConnMaxLifetime(d)
	}
	if d := parseOptionalDuration("pool.conn_max_idle_time", pool.ConnMaxIdleTime); d > 0 {
		db.SetConnMaxIdleTime(d)
	}
}

func newEngine(db *sql.DB, config Config, logger zerolog.Logger, opts []Option) *MysqlMcp {
	o := &options{recorder: metrics.NoOp{}}
	for _, opt := range opts {
		opt(o)
	}

	checker := protection.NewChecker(protection.Config{
		AllowDangerousOperations: config.AllowDangerousOperations,
		Database:                 config.Database,
	})

	rules := errprompt.DefaultRules()
	for _, r := range config.ErrorPrompts {
		rules = append(rules, errprompt.Rule{Pattern: r.Pattern, Message: r.Message})
	}
	matcher, err := errprompt.NewMatcher(rules)
	if err != nil {
		panic("mysqlmcp: " + err.Error())
	}

	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		panic("mysqlmcp: " + err.Error())
	}

	return &MysqlMcp{
		config:     config,
		db:         db,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
		checker:    checker,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		metrics:    o.recorder,
		logger:     logger,
	}
}

// Database returns the configured database name.
func (p *MysqlMcp) Database() string {
	return p.config.Database
}

// Classify runs the query classifier without executing anything.
func (p *MysqlMcp) Classify(sql string) protection.Verdict {
	return p.checker.Classify(sql)
}

// Ping checks that MySQL is reachable.
func (p *MysqlMcp) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool.
func (p *MysqlMcp) Close() error {
	return p.db.Close()
}

// acquire takes a query slot, giving up when ctx is done.
func (p *MysqlMcp) acquire(ctx context.Context, op string) (func(), error) {
	select {
	case p.semaphore <- struct{}{}:
		return func() { <-p.semaphore }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%sfailed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", op, cap(p.semaphore), ctx.Err())
	}
}
