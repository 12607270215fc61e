// Package mysqlmcp provides guarded MySQL access for AI agents through the
// Model Context Protocol (MCP).
//
// It exposes four tools: execute_query, list_databases, list_tables and
// describe_table. Every execute_query call is classified before it reaches
// MySQL. The classifier (internal/protection) parses the text into statements
// and applies, in order, a command allow-list, a table of dangerous
// constructs (INTO OUTFILE, LOAD_FILE, @@ variables, UNION), a search for
// dangerous verbs nested inside subqueries, and a database scope check that
// confines every qualified reference to the configured database. A rejected
// query never touches the connection pool.
//
// Setting AllowDangerousOperations lets write and DDL statements through the
// first three layers. The database scope check always applies.
//
// # Library Usage
//
//	m, err := mysqlmcp.New(ctx, dsn, mysqlmcp.Config{
//		Database: "app",
//		Pool:     mysqlmcp.PoolConfig{MaxConns: 10},
//		Query: mysqlmcp.QueryConfig{
//			DefaultTimeoutSeconds:       30,
//			ListTablesTimeoutSeconds:    10,
//			DescribeTableTimeoutSeconds: 10,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	// Use directly
//	output := m.Query(ctx, mysqlmcp.QueryInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	mysqlmcp.RegisterMCPTools(mcpServer, m)
//
// Classify runs the policy alone, without a round trip:
//
//	if v := m.Classify("DROP TABLE users"); !v.Allowed {
//		fmt.Println(v.Kind, v.Reason)
//	}
package mysqlmcp
