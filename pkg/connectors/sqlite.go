package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/veriflow/veriflow/pkg/engine"
)

// SQLiteOptions configures the sqlite connector.
type SQLiteOptions struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `json:"databasePath" validate:"required"`

	// MaxRowsPerTable caps the rows read per table. Zero applies the default
	// of 10000.
	MaxRowsPerTable int `json:"maxRowsPerTable,omitempty" validate:"min=0"`
}

const defaultMaxRowsPerTable = 10000

// SQLiteConnector extracts the text columns of every user table. Each
// (table, column) pair becomes one source with ID "db(table.column)" whose
// content is the column's values joined by newlines.
type SQLiteConnector struct {
	opts SQLiteOptions
}

// NewSQLiteConnector creates a sqlite connector from validated options.
func NewSQLiteConnector(opts SQLiteOptions) *SQLiteConnector {
	if opts.MaxRowsPerTable == 0 {
		opts.MaxRowsPerTable = defaultMaxRowsPerTable
	}
	return &SQLiteConnector{opts: opts}
}

// Name implements engine.Connector.
func (c *SQLiteConnector) Name() string { return "sqlite" }

// SupportedOutputSchemas implements engine.Connector.
func (c *SQLiteConnector) SupportedOutputSchemas() []engine.Schema {
	return []engine.Schema{engine.NewSchema(SchemaDBTables, 1, 0, 0)}
}

// Extract implements engine.Connector.
func (c *SQLiteConnector) Extract(ctx context.Context, output engine.Schema) (engine.Message, error) {
	if !schemaSupported(c.SupportedOutputSchemas(), output) {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("sqlite connector cannot emit schema %s", output), nil).
			WithComponent(c.Name())
	}

	if _, err := os.Stat(c.opts.DatabasePath); err != nil {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("database %q is not accessible", c.opts.DatabasePath), err).
			WithComponent(c.Name())
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", c.opts.DatabasePath))
	if err != nil {
		return engine.Message{}, engine.NewConnectorConfigError(
			fmt.Sprintf("opening database %q failed", c.opts.DatabasePath), err).
			WithComponent(c.Name())
	}
	defer db.Close()

	tables, err := c.userTables(ctx, db)
	if err != nil {
		return engine.Message{}, engine.NewConnectorExtractionError("listing tables failed", err).
			WithComponent(c.Name())
	}

	var entries []interface{}
	for _, table := range tables {
		columns, err := c.extractTable(ctx, db, table)
		if err != nil {
			return engine.Message{}, engine.NewConnectorExtractionError(
				fmt.Sprintf("extracting table %q failed", table), err).
				WithComponent(c.Name())
		}
		entries = append(entries, columns...)
	}

	return engine.Message{
		ID:      uuid.NewString(),
		Schema:  output,
		Content: sourcesContent(entries),
		Source:  c.opts.DatabasePath,
	}, nil
}

// userTables lists non-internal tables in name order.
func (c *SQLiteConnector) userTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// extractTable reads up to MaxRowsPerTable rows and folds each column's
// values into one source entry.
func (c *SQLiteConnector) extractTable(ctx context.Context, db *sql.DB, table string) ([]interface{}, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), c.opts.MaxRowsPerTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([][]string, len(columns))
	scan := make([]interface{}, len(columns))
	for rows.Next() {
		raw := make([]sql.NullString, len(columns))
		for i := range raw {
			scan[i] = &raw[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}
		for i, v := range raw {
			if v.Valid {
				values[i] = append(values[i], v.String)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var entries []interface{}
	for i, column := range columns {
		if len(values[i]) == 0 {
			continue
		}
		id := fmt.Sprintf("db(%s.%s)", table, column)
		metadata := map[string]interface{}{
			"table":  table,
			"column": column,
			"rows":   len(values[i]),
		}
		entries = append(entries, sourceEntry(id, strings.Join(values[i], "\n"), metadata))
	}
	return entries, nil
}

// quoteIdent quotes a SQLite identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLiteFactory builds sqlite connectors.
type SQLiteFactory struct{}

// ComponentName implements engine.ConnectorFactory.
func (SQLiteFactory) ComponentName() string { return "sqlite" }

// OutputSchemas implements engine.ConnectorFactory.
func (SQLiteFactory) OutputSchemas() []engine.Schema {
	return (&SQLiteConnector{}).SupportedOutputSchemas()
}

// CanCreate implements engine.ConnectorFactory.
func (SQLiteFactory) CanCreate(config engine.ComponentConfig) bool {
	path, ok := config["databasePath"].(string)
	return ok && path != ""
}

// Create implements engine.ConnectorFactory.
func (SQLiteFactory) Create(config engine.ComponentConfig) (engine.Connector, error) {
	var opts SQLiteOptions
	if err := decodeOptions(config, &opts); err != nil {
		return nil, engine.NewConnectorConfigError("invalid sqlite connector config", err).
			WithComponent("sqlite")
	}
	return NewSQLiteConnector(opts), nil
}

// ServiceDependencies implements engine.ConnectorFactory.
func (SQLiteFactory) ServiceDependencies() map[string]reflect.Type { return nil }
