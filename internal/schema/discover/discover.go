// Package discover introspects a relational database and produces a
// schema.Schema snapshot for indexing and validation.
package discover

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sqlsage/sqlsage/internal/schema"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

func ParseDialect(value string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(value))) {
	case DialectPostgres:
		return DialectPostgres, nil
	case DialectSQLite:
		return DialectSQLite, nil
	case DialectDuckDB:
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", value)
	}
}

type Discoverer struct {
	db          *sql.DB
	dialect     Dialect
	sampleLimit int
}

func New(db *sql.DB, dialect Dialect, sampleLimit int) *Discoverer {
	if sampleLimit <= 0 {
		sampleLimit = 3
	}
	return &Discoverer{db: db, dialect: dialect, sampleLimit: sampleLimit}
}

// Discover reads table, column, and foreign key metadata through the
// dialect's catalog, plus a bounded number of sample values per column.
func (d *Discoverer) Discover(ctx context.Context) (schema.Schema, error) {
	tableNames, err := d.listTables(ctx)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("list tables: %w", err)
	}

	out := schema.Schema{Tables: make([]schema.Table, 0, len(tableNames))}
	for _, name := range tableNames {
		table := schema.Table{Name: name}

		table.Columns, err = d.listColumns(ctx, name)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("columns for %q: %w", name, err)
		}
		table.ForeignKeys, err = d.listForeignKeys(ctx, name)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("foreign keys for %q: %w", name, err)
		}
		table.RowCountEstimate, err = d.rowCountEstimate(ctx, name)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("row count for %q: %w", name, err)
		}
		if err := d.attachSampleValues(ctx, &table); err != nil {
			return schema.Schema{}, fmt.Errorf("sample values for %q: %w", name, err)
		}

		out.Tables = append(out.Tables, table)
	}
	return out, nil
}

func (d *Discoverer) listTables(ctx context.Context) ([]string, error) {
	var query string
	switch d.dialect {
	case DialectPostgres:
		query = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`
	case DialectDuckDB:
		query = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
ORDER BY table_name`
	case DialectSQLite:
		query = `
SELECT name
FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d.dialect)
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *Discoverer) listColumns(ctx context.Context, table string) ([]schema.Column, error) {
	if d.dialect == DialectSQLite {
		return d.listColumnsSQLite(ctx, table)
	}

	tableSchema := "public"
	if d.dialect == DialectDuckDB {
		tableSchema = "main"
	}
	query := `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
	if d.dialect == DialectDuckDB {
		query = strings.NewReplacer("$1", "?", "$2", "?").Replace(query)
	}

	rows, err := d.db.QueryContext(ctx, query, tableSchema, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns := make([]schema.Column, 0)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		columns = append(columns, schema.Column{
			Name:     name,
			Type:     dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	return columns, rows.Err()
}

func (d *Discoverer) listColumnsSQLite(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns := make([]schema.Column, 0)
	for rows.Next() {
		var (
			cid        int
			name       string
			dataType   string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, err
		}
		columns = append(columns, schema.Column{
			Name:     name,
			Type:     dataType,
			Nullable: notNull == 0,
		})
	}
	return columns, rows.Err()
}

func (d *Discoverer) listForeignKeys(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	switch d.dialect {
	case DialectPostgres:
		return d.listForeignKeysPostgres(ctx, table)
	case DialectSQLite:
		return d.listForeignKeysSQLite(ctx, table)
	default:
		// DuckDB's referential_constraints view is not populated for
		// in-memory attachments; identifiers still validate via columns.
		return nil, nil
	}
}

func (d *Discoverer) listForeignKeysPostgres(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	query := `
SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1
ORDER BY kcu.column_name`

	rows, err := d.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := make([]schema.ForeignKey, 0)
	for rows.Next() {
		var fk schema.ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		keys = append(keys, fk)
	}
	return keys, rows.Err()
}

func (d *Discoverer) listForeignKeysSQLite(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := make([]schema.ForeignKey, 0)
	for rows.Next() {
		var (
			id, seq                   int
			refTable, from, to        string
			onUpdate, onDelete, match string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		keys = append(keys, schema.ForeignKey{Column: from, ReferencedTable: refTable, ReferencedColumn: to})
	}
	return keys, rows.Err()
}

func (d *Discoverer) rowCountEstimate(ctx context.Context, table string) (int64, error) {
	if d.dialect == DialectPostgres {
		var estimate int64
		err := d.db.QueryRowContext(ctx, `
SELECT reltuples::bigint
FROM pg_class
WHERE relname = $1`, table).Scan(&estimate)
		if err == nil && estimate >= 0 {
			return estimate, nil
		}
		if err != nil && err != sql.ErrNoRows {
			return 0, err
		}
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (d *Discoverer) attachSampleValues(ctx context.Context, table *schema.Table) error {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table.Name), d.sampleLimit))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	byColumn := map[string][]string{}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return err
		}
		for i, name := range columns {
			byColumn[name] = append(byColumn[name], formatValue(values[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range table.Columns {
		table.Columns[i].SampleValues = byColumn[table.Columns[i].Name]
	}
	return nil
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
