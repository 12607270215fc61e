package mysqlmcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers execute_query, list_databases, list_tables and
// describe_table as MCP tools on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, myMcp *MysqlMcp) {
	// ListDatabases tool
	listDatabasesTool := mcp.NewTool("list_databases",
		mcp.WithDescription("List the databases visible to the current MySQL user. Queries may only use the database marked current."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listDatabasesTool, myMcp.loggedToolHandler("list_databases", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := myMcp.ListDatabases(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(output, "failed to marshal list databases result")
	}))

	// ListTables tool
	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables and views in the configured MySQL database."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, myMcp.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := myMcp.ListTables(ctx, ListTablesInput{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(output, "failed to marshal list tables result")
	}))

	// ExecuteQuery tool
	queryOpts := []mcp.ToolOption{
		mcp.WithDescription("Execute a SQL query against the configured MySQL database. Returns results as JSON. " +
			"Queries are checked by a safety policy before they run: only SELECT, SHOW, DESCRIBE and EXPLAIN are allowed " +
			"unless dangerous operations are enabled, and other databases may never be referenced."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
	}
	if !myMcp.config.AllowDangerousOperations {
		queryOpts = append(queryOpts, mcp.WithReadOnlyHintAnnotation(true))
	}
	queryTool := mcp.NewTool("execute_query", queryOpts...)

	mcpServer.AddTool(queryTool, myMcp.loggedToolHandler("execute_query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query parameter is required"), nil
		}
		output := myMcp.Query(ctx, QueryInput{SQL: query})
		if output.Error != "" {
			return mcp.NewToolResultError(output.Error), nil
		}
		return jsonResult(output, "failed to marshal query result")
	}))

	// DescribeTable tool
	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the structure of a table or view in the configured database: columns, types, indexes and foreign keys."),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, myMcp.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table_name")
		if err != nil {
			return mcp.NewToolResultError("table_name parameter is required"), nil
		}
		output, err := myMcp.DescribeTable(ctx, DescribeTableInput{Table: table})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(output, "failed to marshal describe table result")
	}))
}

func jsonResult(v interface{}, marshalErr string) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(marshalErr), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths
// and report the call to the metrics recorder.
func (p *MysqlMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		ok := err == nil && result != nil && !result.IsError
		p.metrics.ToolCall(tool, ok, time.Since(start))
		p.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Bool("ok", ok).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
