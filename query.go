package mysqlmcp

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xwb1989/sqlparser"

	"github.com/rickchristie/mysql-mcp/internal/protection"
	"github.com/rickchristie/mysql-mcp/internal/sqltree"
)

// readCommands return rows and never change data. Batches made only of these
// run in a read-only transaction that is rolled back.
var readCommands = map[string]bool{
	"SELECT": true, "SHOW": true, "DESCRIBE": true, "DESC": true, "EXPLAIN": true,
}

// Query executes the full query pipeline and returns only QueryOutput.
// All errors (MySQL errors, classifier rejections, Go errors) are converted to
// output.Error. The error message is then evaluated against error_prompts and
// any matching prompt messages are appended.
// This means callers only need to check output.Error, never a Go error.
func (p *MysqlMcp) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	query := input.SQL

	// 1. Acquire semaphore (respects context cancellation to prevent deadlock)
	release, err := p.acquire(ctx, "")
	if err != nil {
		return p.handleError(err)
	}
	defer release()

	// 2. Check SQL length before parsing
	if len(query) > p.config.Query.MaxSQLLength {
		return p.handleError(fmt.Errorf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(query), p.config.Query.MaxSQLLength))
	}

	// 3. Classify. A denied query never reaches MySQL.
	verdict := p.checker.Classify(query)
	p.metrics.Verdict(verdictLabel(verdict))
	if !verdict.Allowed {
		p.logger.Warn().
			Str("kind", verdict.Kind.String()).
			Str("reason", verdict.Reason).
			Str("sql", truncateForLog(query, 200)).
			Msg("query rejected")
		return p.errorOutput("query rejected: " + verdict.Reason)
	}

	// 4. Split into statements with their original text
	stmts, err := splitStatements(query)
	if err != nil {
		return p.handleError(err)
	}
	readOnly := true
	for _, stmt := range stmts {
		readOnly = readOnly && stmt.read
	}

	// 5. Determine timeout
	timeout, timeoutRule := p.timeoutMgr.GetTimeoutWithPattern(query)
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 6. Execute in a transaction
	tx, err := p.db.BeginTx(queryCtx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return p.handleError(err)
	}
	defer tx.Rollback() // no-op once committed

	result := &QueryOutput{Columns: []string{}, Rows: []map[string]interface{}{}}
	for _, stmt := range stmts {
		if stmt.read {
			rows, err := tx.QueryContext(queryCtx, stmt.text)
			if err != nil {
				return p.handleError(err)
			}
			columns, resultRows, err := collectRows(rows)
			if err != nil {
				return p.handleError(err)
			}
			result.Columns, result.Rows = columns, resultRows
			continue
		}
		res, err := tx.ExecContext(queryCtx, stmt.text)
		if err != nil {
			return p.handleError(err)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.RowsAffected += n
		}
	}

	// 7. Read-only batches are rolled back; writes commit within the query timeout
	if readOnly {
		tx.Rollback()
	} else if err := tx.Commit(); err != nil {
		return p.handleError(err)
	}

	// 8. Apply max result length truncation
	p.truncateIfNeeded(result)

	// 9. Log successful query execution with pipeline details
	logEvent := p.logger.Info().
		Str("sql", truncateForLog(query, 200)).
		Dur("duration", time.Since(startTime)).
		Int("statements", len(stmts)).
		Int("row_count", len(result.Rows)).
		Int64("rows_affected", result.RowsAffected).
		Bool("read_only", readOnly)
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	logEvent.Msg("query executed")

	return result
}

func verdictLabel(v protection.Verdict) string {
	if v.Allowed {
		return "allowed"
	}
	return v.Kind.String()
}

type statement struct {
	text string
	read bool
}

// splitStatements cuts query into its statements, keeping each statement's
// original text. Pieces holding only comments or whitespace are dropped.
func splitStatements(query string) ([]statement, error) {
	pieces, err := sqlparser.SplitStatementToPieces(query)
	if err != nil {
		return nil, fmt.Errorf("failed to split statements: %w", err)
	}
	var stmts []statement
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		parsed, err := sqltree.Parse(piece)
		if err != nil {
			return nil, fmt.Errorf("failed to parse statement: %w", err)
		}
		if len(parsed) == 0 {
			continue
		}
		cmd, err := protection.CommandOf(parsed[0])
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, statement{text: piece, read: readCommands[cmd]})
	}
	if len(stmts) == 0 {
		return nil, protection.ErrEmptyStatement
	}
	return stmts, nil
}

// collectRows reads all rows and converts each value to a JSON-friendly type.
func collectRows(rows *sql.Rows) ([]string, []map[string]interface{}, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	dbTypes := make([]string, len(columns))
	if colTypes, err := rows.ColumnTypes(); err == nil {
		for i, ct := range colTypes {
			dbTypes[i] = ct.DatabaseTypeName()
		}
	}

	values := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i], dbTypes[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, resultRows, nil
}

// convertValue converts a driver value to a JSON-friendly Go type. MySQL's
// text protocol returns most values as []byte; dbType (the column's
// DatabaseTypeName, possibly empty) decides how they are read.
func convertValue(v interface{}, dbType string) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case []byte:
		return convertBytes(val, dbType)
	default:
		return val
	}
}

func convertFloat(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func convertBytes(b []byte, dbType string) interface{} {
	s := string(b)
	switch strings.TrimPrefix(dbType, "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "YEAR":
		if strings.HasPrefix(dbType, "UNSIGNED ") {
			if n, err := strconv.ParseUint(s, 10, 64); err == nil {
				return n
			}
		} else if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "FLOAT", "DOUBLE":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return convertFloat(f)
		}
	case "JSON":
		if json.Valid(b) {
			return json.RawMessage(append([]byte(nil), b...))
		}
	case "BINARY", "VARBINARY", "TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return base64.StdEncoding.EncodeToString(b)
	}
	// DECIMAL stays a string to keep its precision.
	if utf8.Valid(b) {
		return s
	}
	return base64.StdEncoding.EncodeToString(b)
}

// handleError converts any error into a QueryOutput with error message.
// The error message is evaluated against error_prompts; matching prompt
// messages are appended.
func (p *MysqlMcp) handleError(err error) *QueryOutput {
	logEvent := p.logger.Error().Err(err)
	if patterns := p.errPrompts.Match(err.Error()).Patterns; len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("query error")
	return p.errorOutput(err.Error())
}

func (p *MysqlMcp) errorOutput(msg string) *QueryOutput {
	return &QueryOutput{Error: p.errPrompts.Annotate(msg)}
}

// truncateIfNeeded truncates query output rows if they exceed MaxResultLength (in characters).
func (p *MysqlMcp) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= p.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:p.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
