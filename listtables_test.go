package mysqlmcp_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

func TestListTables(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectQuery("SHOW FULL TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_taskflow_service", "Table_type"}).
			AddRow("tasks", "BASE TABLE").
			AddRow("open_tasks", "VIEW"))

	output, err := m.ListTables(context.Background(), mysqlmcp.ListTablesInput{})
	require.NoError(t, err)
	assert.Equal(t, testDatabase, output.Database)
	assert.Equal(t, []mysqlmcp.TableEntry{
		{Name: "tasks", Type: "table"},
		{Name: "open_tasks", Type: "view"},
	}, output.Tables)
}

func TestListTables_Empty(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectQuery("SHOW FULL TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_taskflow_service", "Table_type"}))

	output, err := m.ListTables(context.Background(), mysqlmcp.ListTablesInput{})
	require.NoError(t, err)
	assert.NotNil(t, output.Tables)
	assert.Empty(t, output.Tables)
}

func TestListTables_QueryError(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectQuery("SHOW FULL TABLES").WillReturnError(errors.New("connection reset"))

	_, err := m.ListTables(context.Background(), mysqlmcp.ListTablesInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ListTables query failed: connection reset")
}

func TestListDatabases(t *testing.T) {
	t.Parallel()
	m, mock := newTestInstance(t, defaultConfig())

	mock.ExpectQuery("SHOW DATABASES").
		WillReturnRows(sqlmock.NewRows([]string{"Database"}).
			AddRow("information_schema").
			AddRow("TaskFlow_Service").
			AddRow(testDatabase))

	output, err := m.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, output.Databases, 3)
	assert.False(t, output.Databases[0].Current)
	// Only an exact match is the configured database.
	assert.False(t, output.Databases[1].Current)
	assert.True(t, output.Databases[2].Current)
}
