package mysqlmcp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	listDatabasesSQL = "SHOW DATABASES"
	listTablesSQL    = "SHOW FULL TABLES"
)

// ListDatabases returns the databases visible to the configured user and
// marks the configured one. Listing is informational: queries stay confined
// to the configured database.
// Does NOT go through the classifier pipeline.
func (p *MysqlMcp) ListDatabases(ctx context.Context) (*ListDatabasesOutput, error) {
	startTime := time.Now()

	release, err := p.acquire(ctx, "ListDatabases: ")
	if err != nil {
		return nil, err
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(queryCtx, listDatabasesSQL)
	if err != nil {
		return nil, fmt.Errorf("ListDatabases query failed: %w", err)
	}
	defer rows.Close()

	databases := []DatabaseEntry{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ListDatabases scan failed: %w", err)
		}
		databases = append(databases, DatabaseEntry{Name: name, Current: name == p.config.Database})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDatabases rows error: %w", err)
	}

	p.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("database_count", len(databases)).
		Msg("ListDatabases executed")

	return &ListDatabasesOutput{Databases: databases}, nil
}

// ListTables returns all tables and views of the configured database.
// Does NOT go through the classifier pipeline.
func (p *MysqlMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	release, err := p.acquire(ctx, "ListTables: ")
	if err != nil {
		return nil, err
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(queryCtx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("ListTables query failed: %w", err)
	}
	defer rows.Close()

	tables := []TableEntry{}
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, fmt.Errorf("ListTables scan failed: %w", err)
		}
		tables = append(tables, TableEntry{Name: name, Type: tableTypeName(tableType)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTables rows error: %w", err)
	}

	p.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Database: p.config.Database, Tables: tables}, nil
}

// tableTypeName maps information_schema TABLE_TYPE values to the tool's names.
func tableTypeName(t string) string {
	switch strings.ToUpper(t) {
	case "BASE TABLE":
		return "table"
	case "VIEW":
		return "view"
	case "SYSTEM VIEW":
		return "system_view"
	default:
		return strings.ToLower(strings.ReplaceAll(t, " ", "_"))
	}
}
