// Package schema defines the discovered shape of the analytical
// database: tables, columns, foreign keys, and sample values. A Schema
// is the input to index building and identifier validation.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

type Column struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Nullable     bool     `json:"nullable"`
	SampleValues []string `json:"sample_values,omitempty"`
}

type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

type Table struct {
	Name             string       `json:"name"`
	Columns          []Column     `json:"columns"`
	ForeignKeys      []ForeignKey `json:"foreign_keys,omitempty"`
	RowCountEstimate int64        `json:"row_count_estimate"`
}

type Schema struct {
	Tables []Table `json:"tables"`
}

func (s Schema) Empty() bool {
	return len(s.Tables) == 0
}

// SortedTables returns the tables in name order without mutating the
// receiver. Stable ordering is what makes index builds deterministic.
func (s Schema) SortedTables() []Table {
	tables := make([]Table, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

// TableNames returns the set of table names, lowercased for
// case-insensitive identifier checks.
func (s Schema) TableNames() map[string]struct{} {
	names := make(map[string]struct{}, len(s.Tables))
	for _, table := range s.Tables {
		names[strings.ToLower(table.Name)] = struct{}{}
	}
	return names
}

// ColumnNames returns every known column name across all tables,
// lowercased.
func (s Schema) ColumnNames() map[string]struct{} {
	names := map[string]struct{}{}
	for _, table := range s.Tables {
		for _, column := range table.Columns {
			names[strings.ToLower(column.Name)] = struct{}{}
		}
	}
	return names
}

// RenderTable formats one table as prompt-ready text.
func RenderTable(table Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", table.Name)
	if table.RowCountEstimate > 0 {
		fmt.Fprintf(&b, "Approximate rows: %d\n", table.RowCountEstimate)
	}
	b.WriteString("Columns:\n")
	for _, column := range table.Columns {
		nullability := "NOT NULL"
		if column.Nullable {
			nullability = "NULLABLE"
		}
		fmt.Fprintf(&b, "  - %s %s %s\n", column.Name, column.Type, nullability)
	}
	for _, fk := range table.ForeignKeys {
		fmt.Fprintf(&b, "Foreign key: %s.%s -> %s.%s\n", table.Name, fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
	}
	return b.String()
}

// RenderSamples formats the sample values of a table, one line per
// column. Returns "" when the table carries no samples.
func RenderSamples(table Table) string {
	var b strings.Builder
	for _, column := range table.Columns {
		if len(column.SampleValues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", column.Name, strings.Join(column.SampleValues, ", "))
	}
	if b.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("Sample values from %s:\n%s", table.Name, b.String())
}
