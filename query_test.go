package mysqlmcp_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

// recorder captures metrics calls.
type recorder struct {
	mu       sync.Mutex
	verdicts []string
	tools    []string
}

func (r *recorder) Verdict(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, kind)
}

func (r *recorder) ToolCall(tool string, ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "ok"
	if !ok {
		status = "error"
	}
	r.tools = append(r.tools, tool+":"+status)
}

func TestQuery_SelectRunsInRolledBackTransaction(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, []byte("alice")).
			AddRow(2, nil))
	mock.ExpectRollback()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT id, name FROM users"})
	require.Empty(t, output.Error)
	assert.Equal(t, []string{"id", "name"}, output.Columns)
	require.Len(t, output.Rows, 2)
	assert.EqualValues(t, 1, output.Rows[0]["id"])
	assert.Equal(t, "alice", output.Rows[0]["name"])
	assert.Nil(t, output.Rows[1]["name"])
}

func TestQuery_EmptyResultHasEmptySlices(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM users WHERE id = 0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT id FROM users WHERE id = 0"})
	require.Empty(t, output.Error)
	assert.NotNil(t, output.Rows)
	assert.Empty(t, output.Rows)
}

func TestQuery_RejectedQueriesNeverReachMySQL(t *testing.T) {
	t.Parallel()
	m, _ := newTestInstance(t, defaultConfig())

	cases := []struct {
		sql    string
		reason string
	}{
		{"DROP TABLE users", "disallowed command: DROP"},
		{"INSERT INTO users (name) VALUES ('x')", "disallowed command: INSERT"},
		{"SELECT * FROM other_db.users", "access to database 'other_db' is not allowed"},
		{"USE other_db", "disallowed command: USE"},
		{"SELECT @@version", "system variable access"},
		{"SELECT * FROM users INTO OUTFILE '/tmp/x'", "INTO OUTFILE is not allowed"},
		{"SELECT * FROM (DELETE FROM users) t", "nested dangerous operation: DELETE"},
		{"SELECT 1; DROP TABLE users", "disallowed command: DROP"},
		{"SELECT 'unterminated", "unparseable statement"},
		{"", "unparseable statement"},
	}
	for _, tc := range cases {
		output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: tc.sql})
		if !strings.HasPrefix(output.Error, "query rejected: ") {
			t.Fatalf("%q: expected rejection, got error %q", tc.sql, output.Error)
		}
		if !strings.Contains(output.Error, tc.reason) {
			t.Fatalf("%q: expected reason containing %q, got %q", tc.sql, tc.reason, output.Error)
		}
		if !strings.Contains(output.Error, "safety policy") {
			t.Fatalf("%q: expected policy guidance appended, got %q", tc.sql, output.Error)
		}
	}
}

func TestQuery_OperatorsThatLookLikeCommentsNeverReachMySQL(t *testing.T) {
	t.Parallel()
	// No expectations: any Begin or Query on the mock fails the test.
	m, _ := newTestInstance(t, defaultConfig())

	for _, sql := range []string{
		"SELECT 1 --1, LOAD_FILE('/etc/passwd')",
		"SELECT 1 --1 UNION SELECT authentication_string FROM mysql.user",
		"SELECT 2 //**/ 1, LOAD_FILE('/etc/passwd')",
	} {
		output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: sql})
		assert.Equal(t, "query rejected: unparseable statement", strings.SplitN(output.Error, "\n", 2)[0], sql)
		assert.Nil(t, output.Rows, sql)
	}
}

func TestQuery_MultipleReadStatements(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery("SHOW TABLES").WillReturnRows(sqlmock.NewRows([]string{"Tables_in_taskflow_service"}).
		AddRow("users").
		AddRow("tasks"))
	mock.ExpectRollback()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT 1;\n SHOW TABLES;"})
	require.Empty(t, output.Error)
	assert.Equal(t, []string{"Tables_in_taskflow_service"}, output.Columns)
	assert.Len(t, output.Rows, 2)
}

func TestQuery_WritesCommitWhenDangerousOperationsAllowed(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.AllowDangerousOperations = true
	m, mock := newTestInstance(t, config)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users (name) VALUES ('a')").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("UPDATE users SET name = 'b' WHERE id = 7").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT(*) FROM users").WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(7))
	mock.ExpectCommit()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{
		SQL: "INSERT INTO users (name) VALUES ('a'); UPDATE users SET name = 'b' WHERE id = 7; SELECT COUNT(*) FROM users",
	})
	require.Empty(t, output.Error)
	assert.EqualValues(t, 2, output.RowsAffected)
	assert.Equal(t, []string{"COUNT(*)"}, output.Columns)
}

func TestQuery_ScopeEnforcedWhenDangerousOperationsAllowed(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.AllowDangerousOperations = true
	m, _ := newTestInstance(t, config)

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "DELETE FROM other_db.users"})
	assert.Contains(t, output.Error, "access to database 'other_db' is not allowed")

	output = m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "USE other_db"})
	assert.Contains(t, output.Error, "database switching is not allowed")
}

func TestQuery_MySQLErrorGetsPrompt(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT * FROM missing").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'taskflow_service.missing' doesn't exist"})
	mock.ExpectRollback()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT * FROM missing"})
	assert.Contains(t, output.Error, "1146")
	assert.Contains(t, output.Error, "list_tables")
}

func TestQuery_ConfiguredErrorPrompt(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.ErrorPrompts = []mysqlmcp.ErrorPromptRule{
		{Pattern: `Unknown column 'deleted_at'`, Message: "Soft deletes use the archived flag."},
	}
	m, mock := newTestInstance(t, config)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT deleted_at FROM users").
		WillReturnError(&mysql.MySQLError{Number: 1054, Message: "Unknown column 'deleted_at' in 'field list'"})
	mock.ExpectRollback()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT deleted_at FROM users"})
	assert.Contains(t, output.Error, "describe_table")
	assert.Contains(t, output.Error, "Soft deletes use the archived flag.")
}

func TestQuery_TooLong(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.MaxSQLLength = 10
	m, _ := newTestInstance(t, config)

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT * FROM users"})
	assert.Contains(t, output.Error, "SQL query too long: 19 bytes exceeds maximum of 10 bytes")
}

func TestQuery_ResultTruncated(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.MaxResultLength = 20
	m, mock := newTestInstance(t, config)

	rows := sqlmock.NewRows([]string{"body"})
	for i := 0; i < 10; i++ {
		rows.AddRow([]byte("a fairly long row body"))
	}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT body FROM notes").WillReturnRows(rows)
	mock.ExpectRollback()

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT body FROM notes"})
	assert.Nil(t, output.Rows)
	assert.Contains(t, output.Error, "...[truncated] Result is too long! Add limits in your query!")
}

func TestQuery_BeginFailure(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectBegin().WillReturnError(&mysql.MySQLError{Number: 1045, Message: "Access denied for user 'agent'@'localhost'"})

	output := m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT 1"})
	assert.Contains(t, output.Error, "Access denied")
	assert.Contains(t, output.Error, "privileges")
}

func TestQuery_RecordsVerdicts(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	m, mock := newTestInstance(t, defaultConfig(), mysqlmcp.WithMetrics(rec))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT 1"})
	m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "DROP TABLE users"})
	m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT * FROM mysql.user"})

	assert.Equal(t, []string{"allowed", "disallowed_command", "database_scope_violation"}, rec.verdicts)
}

func TestQuery_CancelledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Pool.MaxConns = 1
	m, mock := newTestInstance(t, config)

	started := make(chan struct{})
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT SLEEP(1)").
		WillDelayFor(300 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"SLEEP(1)"}).AddRow(0))
	mock.ExpectRollback()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		m.Query(context.Background(), mysqlmcp.QueryInput{SQL: "SELECT SLEEP(1)"})
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	output := m.Query(ctx, mysqlmcp.QueryInput{SQL: "SELECT 1"})
	assert.Contains(t, output.Error, "failed to acquire query slot: all 1 connection slots are in use")
	wg.Wait()
}

func TestClassify_DoesNotTouchMySQL(t *testing.T) {
	t.Parallel()
	m, _ := newTestInstance(t, defaultConfig())

	assert.True(t, m.Classify("SELECT * FROM taskflow_service.users").Allowed)
	v := m.Classify("TRUNCATE users")
	assert.False(t, v.Allowed)
	assert.Equal(t, "disallowed command: TRUNCATE", v.Reason)
	assert.Equal(t, testDatabase, m.Database())
}
