package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/sqlsage/sqlsage/internal/schema"
)

func newTestValidator() *Validator {
	return New(schema.Schema{Tables: []schema.Table{
		{
			Name: "orders",
			Columns: []schema.Column{
				{Name: "order_id", Type: "bigint"},
				{Name: "customer_id", Type: "bigint"},
				{Name: "total", Type: "numeric"},
			},
		},
		{
			Name: "customers",
			Columns: []schema.Column{
				{Name: "customer_id", Type: "bigint"},
				{Name: "email", Type: "text"},
			},
		},
	}})
}

func TestValidateAcceptsCleanSelect(t *testing.T) {
	result, err := newTestValidator().Validate("SELECT order_id, total FROM orders")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}

func TestValidateRejectsEmptyQuery(t *testing.T) {
	_, err := newTestValidator().Validate("   ")
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("error = %T, want *FatalError", err)
	}
	if fatal.Check != "empty" {
		t.Fatalf("check = %q", fatal.Check)
	}
}

func TestValidateRejectsMutatingStatements(t *testing.T) {
	queries := []string{
		"DELETE FROM orders",
		"INSERT INTO orders VALUES (1)",
		"UPDATE orders SET total = 0",
		"DROP TABLE orders",
		"TRUNCATE orders",
		"CREATE TABLE x (id int)",
		"SELECT * FROM orders; DROP TABLE orders",
		"WITH x AS (DELETE FROM orders RETURNING *) SELECT * FROM x",
		"ATTACH DATABASE 'other.db' AS other",
		"PRAGMA table_info(orders)",
		"GRANT ALL ON orders TO public",
	}
	for _, query := range queries {
		_, err := newTestValidator().Validate(query)
		var fatal *FatalError
		if !errors.As(err, &fatal) {
			t.Fatalf("Validate(%q) error = %v, want *FatalError", query, err)
		}
		if fatal.Check != "read_only" {
			t.Fatalf("Validate(%q) check = %q", query, fatal.Check)
		}
	}
}

func TestValidateRejectsNonSelectPrefix(t *testing.T) {
	_, err := newTestValidator().Validate("EXPLAIN SELECT 1")
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("error = %T, want *FatalError", err)
	}
}

func TestValidateAllowsWithPrefix(t *testing.T) {
	result, err := newTestValidator().Validate("WITH t AS (SELECT total FROM orders) SELECT * FROM t")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	for _, warning := range result.Warnings {
		if strings.Contains(warning, `"t"`) {
			t.Fatalf("CTE alias flagged: %q", warning)
		}
	}
}

func TestValidateWarnsOnUnknownIdentifier(t *testing.T) {
	result, err := newTestValidator().Validate("SELECT order_total FROM orders")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], `"order_total"`) {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}

func TestValidateWarnsOnUnbalancedParens(t *testing.T) {
	result, err := newTestValidator().Validate("SELECT count(order_id FROM orders")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	found := false
	for _, warning := range result.Warnings {
		if warning == "unbalanced parentheses" {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}

func TestValidateDoesNotFlagDeclaredAliases(t *testing.T) {
	result, err := newTestValidator().Validate(
		"SELECT o.total AS order_value FROM orders o JOIN customers c ON o.customer_id = c.customer_id",
	)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}

func TestValidateIgnoresKeywordsInsideStringLiterals(t *testing.T) {
	queries := []string{
		"SELECT order_id FROM orders WHERE email = 'delete'",
		"SELECT order_id FROM orders WHERE email = 'drop table orders'",
		"SELECT order_id FROM orders WHERE email = 'it''s an update'",
	}
	for _, query := range queries {
		result, err := newTestValidator().Validate(query)
		if err != nil {
			t.Fatalf("Validate(%q) error = %v", query, err)
		}
		if len(result.Warnings) != 0 {
			t.Fatalf("Validate(%q) warnings = %#v", query, result.Warnings)
		}
	}
}

func TestValidateIgnoresParensInsideStringLiterals(t *testing.T) {
	result, err := newTestValidator().Validate("SELECT order_id FROM orders WHERE email = ':-('")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}

func TestValidateDeduplicatesWarnings(t *testing.T) {
	result, err := newTestValidator().Validate("SELECT bogus, bogus, bogus FROM orders")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %#v", result.Warnings)
	}
}
