package mysqlmcp

// QueryInput is the input for the execute_query tool.
type QueryInput struct {
	SQL string `json:"query"`
}

// QueryOutput is the output of the execute_query tool. All errors (MySQL
// errors, classifier rejections, Go errors) are placed in Error. The error
// message is evaluated against error_prompts and matching prompt messages are
// appended.
//
// For a batch of statements, Columns and Rows come from the last statement
// that returned rows and RowsAffected is summed over the batch.
type QueryOutput struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected int64                    `json:"rows_affected"`
	Error        string                   `json:"error,omitempty"`
}

// DatabaseEntry is one database visible to the configured user.
type DatabaseEntry struct {
	Name    string `json:"name"`
	Current bool   `json:"current,omitempty"`
}

// ListDatabasesOutput is the output of the list_databases tool.
type ListDatabasesOutput struct {
	Databases []DatabaseEntry `json:"databases"`
}

// ListTablesInput is the input for the list_tables tool.
type ListTablesInput struct{}

// TableEntry represents a single table or view in the ListTables output.
type TableEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "table", "view", "system_view"
}

// ListTablesOutput is the output of the list_tables tool.
type ListTablesOutput struct {
	Database string       `json:"database"`
	Tables   []TableEntry `json:"tables"`
}

// DescribeTableInput is the input for the describe_table tool.
type DescribeTableInput struct {
	Table string `json:"table_name"`
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default"`
	Key          string  `json:"key,omitempty"` // PRI, UNI, MUL
	Extra        string  `json:"extra,omitempty"`
	Comment      string  `json:"comment,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name      string `json:"name"`
	Columns   string `json:"columns"`
	IsUnique  bool   `json:"is_unique"`
	IsPrimary bool   `json:"is_primary"`
}

// ForeignKeyInfo describes a single foreign key.
type ForeignKeyInfo struct {
	Name              string `json:"name"`
	Columns           string `json:"columns"`
	ReferencedTable   string `json:"referenced_table"`
	ReferencedColumns string `json:"referenced_columns"`
	OnUpdate          string `json:"on_update"`
	OnDelete          string `json:"on_delete"`
}

// DescribeTableOutput is the output of the describe_table tool.
type DescribeTableOutput struct {
	Database    string           `json:"database"`
	Name        string           `json:"name"`
	Type        string           `json:"type"` // "table", "view"
	Engine      string           `json:"engine,omitempty"`
	Comment     string           `json:"comment,omitempty"`
	Definition  string           `json:"definition,omitempty"` // view SQL definition
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
}
