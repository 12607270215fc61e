package mysqlmcp

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDescribeInstance(t *testing.T) (*MysqlMcp, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	m := NewWithDB(db, Config{
		Database: "shop",
		Pool:     PoolConfig{MaxConns: 2},
		Query: QueryConfig{
			DefaultTimeoutSeconds:       30,
			ListTablesTimeoutSeconds:    10,
			DescribeTableTimeoutSeconds: 10,
		},
	}, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return m, mock
}

func TestDescribeTable_Table(t *testing.T) {
	t.Parallel()
	m, mock := newDescribeInstance(t)

	mock.ExpectQuery(tableInfoSQL).WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_TYPE", "ENGINE", "TABLE_COMMENT"}).
			AddRow("BASE TABLE", "InnoDB", "customer orders"))
	mock.ExpectQuery(columnsSQL).WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY", "EXTRA", "COLUMN_COMMENT"}).
			AddRow("id", "bigint unsigned", "NO", nil, "PRI", "auto_increment", "").
			AddRow("customer_id", "bigint unsigned", "NO", nil, "MUL", "", "").
			AddRow("status", "varchar(16)", "YES", "new", "", "", "lifecycle state"))
	mock.ExpectQuery(indexesSQL).WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "NON_UNIQUE", "COLUMNS"}).
			AddRow("PRIMARY", 0, "id").
			AddRow("idx_customer", 1, "customer_id, status"))
	mock.ExpectQuery(foreignKeysSQL).WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "COLUMNS", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMNS", "UPDATE_RULE", "DELETE_RULE"}).
			AddRow("fk_orders_customer", "customer_id", "customers", "id", "CASCADE", "RESTRICT"))

	output, err := m.DescribeTable(context.Background(), DescribeTableInput{Table: "orders"})
	require.NoError(t, err)

	assert.Equal(t, "shop", output.Database)
	assert.Equal(t, "table", output.Type)
	assert.Equal(t, "InnoDB", output.Engine)
	assert.Equal(t, "customer orders", output.Comment)

	require.Len(t, output.Columns, 3)
	assert.True(t, output.Columns[0].IsPrimaryKey)
	assert.False(t, output.Columns[0].Nullable)
	assert.Nil(t, output.Columns[0].Default)
	require.NotNil(t, output.Columns[2].Default)
	assert.Equal(t, "new", *output.Columns[2].Default)
	assert.True(t, output.Columns[2].Nullable)

	assert.Equal(t, []IndexInfo{
		{Name: "PRIMARY", Columns: "id", IsUnique: true, IsPrimary: true},
		{Name: "idx_customer", Columns: "customer_id, status"},
	}, output.Indexes)
	assert.Equal(t, []ForeignKeyInfo{{
		Name: "fk_orders_customer", Columns: "customer_id",
		ReferencedTable: "customers", ReferencedColumns: "id",
		OnUpdate: "CASCADE", OnDelete: "RESTRICT",
	}}, output.ForeignKeys)
}

func TestDescribeTable_View(t *testing.T) {
	t.Parallel()
	m, mock := newDescribeInstance(t)

	mock.ExpectQuery(tableInfoSQL).WithArgs("shop", "open_orders").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_TYPE", "ENGINE", "TABLE_COMMENT"}).
			AddRow("VIEW", "", "VIEW"))
	mock.ExpectQuery(columnsSQL).WithArgs("shop", "open_orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY", "EXTRA", "COLUMN_COMMENT"}).
			AddRow("id", "bigint unsigned", "NO", "0", "", "", ""))
	mock.ExpectQuery(viewDefSQL).WithArgs("shop", "open_orders").
		WillReturnRows(sqlmock.NewRows([]string{"VIEW_DEFINITION"}).
			AddRow("select `shop`.`orders`.`id` AS `id` from `shop`.`orders`"))

	output, err := m.DescribeTable(context.Background(), DescribeTableInput{Table: "open_orders"})
	require.NoError(t, err)
	assert.Equal(t, "view", output.Type)
	assert.True(t, strings.HasPrefix(output.Definition, "select "))
	assert.Empty(t, output.Indexes)
	assert.Empty(t, output.ForeignKeys)
}

func TestDescribeTable_NotFound(t *testing.T) {
	t.Parallel()
	m, mock := newDescribeInstance(t)

	mock.ExpectQuery(tableInfoSQL).WithArgs("shop", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_TYPE", "ENGINE", "TABLE_COMMENT"}))

	_, err := m.DescribeTable(context.Background(), DescribeTableInput{Table: "ghost"})
	require.Error(t, err)
	assert.Equal(t, `table "ghost" does not exist in database "shop"`, err.Error())
}

func TestDescribeTable_InvalidNames(t *testing.T) {
	t.Parallel()
	m, _ := newDescribeInstance(t)

	for _, name := range []string{"", "1orders", "orders; DROP TABLE x", "other.orders", "`orders`", "ord-ers"} {
		_, err := m.DescribeTable(context.Background(), DescribeTableInput{Table: name})
		if err == nil {
			t.Fatalf("expected error for table name %q", name)
		}
	}
}
