package mysqlmcp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// SQL queries for DescribeTable. All take (database, table).

const tableInfoSQL = `
SELECT TABLE_TYPE, COALESCE(ENGINE, ''), COALESCE(TABLE_COMMENT, '')
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

const columnsSQL = `
SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_KEY, EXTRA, COLUMN_COMMENT
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

const viewDefSQL = `
SELECT VIEW_DEFINITION
FROM information_schema.VIEWS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`

const indexesSQL = `
SELECT INDEX_NAME, MIN(NON_UNIQUE),
       GROUP_CONCAT(COLUMN_NAME ORDER BY SEQ_IN_INDEX SEPARATOR ', ')
FROM information_schema.STATISTICS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
GROUP BY INDEX_NAME
ORDER BY INDEX_NAME`

const foreignKeysSQL = `
SELECT k.CONSTRAINT_NAME,
       GROUP_CONCAT(k.COLUMN_NAME ORDER BY k.ORDINAL_POSITION SEPARATOR ', '),
       k.REFERENCED_TABLE_NAME,
       GROUP_CONCAT(k.REFERENCED_COLUMN_NAME ORDER BY k.ORDINAL_POSITION SEPARATOR ', '),
       r.UPDATE_RULE,
       r.DELETE_RULE
FROM information_schema.KEY_COLUMN_USAGE k
JOIN information_schema.REFERENTIAL_CONSTRAINTS r
  ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
WHERE k.TABLE_SCHEMA = ? AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
GROUP BY k.CONSTRAINT_NAME, k.REFERENCED_TABLE_NAME, r.UPDATE_RULE, r.DELETE_RULE
ORDER BY k.CONSTRAINT_NAME`

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DescribeTable returns the columns, indexes and foreign keys of a table or
// view in the configured database.
// Does NOT go through the classifier pipeline: the table name is validated
// and only ever bound as a parameter.
func (p *MysqlMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	if input.Table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if !tableNamePattern.MatchString(input.Table) {
		return nil, fmt.Errorf("invalid table name %q: must match %s", input.Table, tableNamePattern.String())
	}

	release, err := p.acquire(ctx, "DescribeTable: ")
	if err != nil {
		return nil, err
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.DescribeTableTimeoutSeconds)*time.Second)
	defer cancel()

	db, table := p.config.Database, input.Table
	output := &DescribeTableOutput{
		Database:    db,
		Name:        table,
		Columns:     []ColumnInfo{},
		Indexes:     []IndexInfo{},
		ForeignKeys: []ForeignKeyInfo{},
	}

	var tableType string
	err = p.db.QueryRowContext(queryCtx, tableInfoSQL, db, table).Scan(&tableType, &output.Engine, &output.Comment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %q does not exist in database %q", table, db)
	}
	if err != nil {
		return nil, fmt.Errorf("DescribeTable type lookup failed: %w", err)
	}
	output.Type = tableTypeName(tableType)

	if output.Columns, err = p.describeColumns(queryCtx, db, table); err != nil {
		return nil, err
	}

	if output.Type == "view" {
		var def sql.NullString
		if err := p.db.QueryRowContext(queryCtx, viewDefSQL, db, table).Scan(&def); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("DescribeTable view definition failed: %w", err)
		}
		output.Definition = def.String
	} else {
		if output.Indexes, err = p.describeIndexes(queryCtx, db, table); err != nil {
			return nil, err
		}
		if output.ForeignKeys, err = p.describeForeignKeys(queryCtx, db, table); err != nil {
			return nil, err
		}
	}

	p.logger.Info().
		Str("table", table).
		Str("type", output.Type).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(output.Columns)).
		Msg("DescribeTable executed")

	return output, nil
}

func (p *MysqlMcp) describeColumns(ctx context.Context, db, table string) ([]ColumnInfo, error) {
	rows, err := p.db.QueryContext(ctx, columnsSQL, db, table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable columns query failed: %w", err)
	}
	defer rows.Close()

	columns := []ColumnInfo{}
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def, &col.Key, &col.Extra, &col.Comment); err != nil {
			return nil, fmt.Errorf("DescribeTable columns scan failed: %w", err)
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			col.Default = &def.String
		}
		col.IsPrimaryKey = col.Key == "PRI"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DescribeTable columns rows error: %w", err)
	}
	return columns, nil
}

func (p *MysqlMcp) describeIndexes(ctx context.Context, db, table string) ([]IndexInfo, error) {
	rows, err := p.db.QueryContext(ctx, indexesSQL, db, table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable indexes query failed: %w", err)
	}
	defer rows.Close()

	indexes := []IndexInfo{}
	for rows.Next() {
		var idx IndexInfo
		var nonUnique int
		if err := rows.Scan(&idx.Name, &nonUnique, &idx.Columns); err != nil {
			return nil, fmt.Errorf("DescribeTable indexes scan failed: %w", err)
		}
		idx.IsUnique = nonUnique == 0
		idx.IsPrimary = idx.Name == "PRIMARY"
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DescribeTable indexes rows error: %w", err)
	}
	return indexes, nil
}

func (p *MysqlMcp) describeForeignKeys(ctx context.Context, db, table string) ([]ForeignKeyInfo, error) {
	rows, err := p.db.QueryContext(ctx, foreignKeysSQL, db, table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable foreign keys query failed: %w", err)
	}
	defer rows.Close()

	fks := []ForeignKeyInfo{}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Columns, &fk.ReferencedTable, &fk.ReferencedColumns, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("DescribeTable foreign keys scan failed: %w", err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DescribeTable foreign keys rows error: %w", err)
	}
	return fks, nil
}
