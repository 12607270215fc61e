package mysqlmcp_test

import (
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

const testDatabase = "taskflow_service"

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() mysqlmcp.Config {
	return mysqlmcp.Config{
		Database: testDatabase,
		Pool:     mysqlmcp.PoolConfig{MaxConns: 5},
		Query: mysqlmcp.QueryConfig{
			DefaultTimeoutSeconds:       30,
			ListTablesTimeoutSeconds:    10,
			DescribeTableTimeoutSeconds: 10,
			MaxSQLLength:                100000,
			MaxResultLength:             100000,
		},
	}
}

// newTestInstance returns an engine backed by sqlmock. Statements are matched
// by exact text. Unmet expectations fail the test on cleanup.
func newTestInstance(t *testing.T, config mysqlmcp.Config, opts ...mysqlmcp.Option) (*mysqlmcp.MysqlMcp, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	m := mysqlmcp.NewWithDB(db, config, testLogger(), opts...)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return m, mock
}
