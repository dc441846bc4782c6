// Package validate runs pre-execution checks over a candidate query.
// Fatal checks enforce read-only access and terminate the request
// without consuming repair budget; identifier checks only warn, since
// near-miss names are cheaply fixed by the repair loop.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlsage/sqlsage/internal/schema"
)

// FatalError is the closed validation failure class. It is never fed
// back for repair.
type FatalError struct {
	Check   string
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("validate: %s: %s", e.Check, e.Message)
}

type Result struct {
	Warnings []string
}

var (
	mutatingKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|attach|pragma|grant|revoke)\b`)
	identifierToken  = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
)

// reservedWords are tokens that never name a table or column. Anything
// else unknown to the schema is worth a warning.
var reservedWords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "join": {}, "inner": {}, "left": {},
	"right": {}, "full": {}, "outer": {}, "cross": {}, "on": {}, "as": {},
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "null": {}, "like": {},
	"between": {}, "exists": {}, "group": {}, "by": {}, "having": {}, "order": {},
	"asc": {}, "desc": {}, "limit": {}, "offset": {}, "distinct": {}, "union": {},
	"all": {}, "with": {}, "case": {}, "when": {}, "then": {}, "else": {},
	"end": {}, "cast": {}, "count": {}, "sum": {}, "avg": {}, "min": {}, "max": {},
	"coalesce": {}, "round": {}, "abs": {}, "length": {}, "lower": {}, "upper": {},
	"substr": {}, "substring": {}, "trim": {}, "strftime": {}, "date": {},
	"datetime": {}, "now": {}, "extract": {}, "interval": {}, "year": {},
	"month": {}, "day": {}, "true": {}, "false": {}, "using": {}, "over": {},
	"partition": {}, "row_number": {}, "rank": {}, "dense_rank": {}, "nullif": {},
	"concat": {}, "current_date": {}, "current_timestamp": {}, "integer": {},
	"text": {}, "real": {}, "numeric": {}, "varchar": {}, "recursive": {},
}

type Validator struct {
	knownTables  map[string]struct{}
	knownColumns map[string]struct{}
}

func New(s schema.Schema) *Validator {
	return &Validator{
		knownTables:  s.TableNames(),
		knownColumns: s.ColumnNames(),
	}
}

// Validate runs the ordered checks and short-circuits on the first
// fatal one.
func (v *Validator) Validate(sql string) (Result, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return Result{}, &FatalError{Check: "empty", Message: "query is empty"}
	}

	// Scan over a copy with string literals blanked, so a value like
	// 'delete' never trips the keyword or identifier checks.
	masked := maskLiterals(trimmed)

	if match := mutatingKeywords.FindString(masked); match != "" {
		return Result{}, &FatalError{
			Check:   "read_only",
			Message: fmt.Sprintf("mutating statement keyword %q is not allowed", strings.ToUpper(match)),
		}
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return Result{}, &FatalError{Check: "read_only", Message: "query must be a SELECT or WITH statement"}
	}

	var warnings []string
	if strings.Count(masked, "(") != strings.Count(masked, ")") {
		warnings = append(warnings, "unbalanced parentheses")
	}
	warnings = append(warnings, v.unknownIdentifiers(masked)...)

	return Result{Warnings: warnings}, nil
}

// maskLiterals blanks the contents of single-quoted strings. Doubled
// quotes toggle the state twice, which keeps escaped quotes inside the
// mask.
func maskLiterals(sql string) string {
	out := []rune(sql)
	inString := false
	for i, r := range out {
		switch {
		case r == '\'':
			inString = !inString
		case inString:
			out[i] = ' '
		}
	}
	return string(out)
}

// unknownIdentifiers flags tokens naming neither a table, a column, a
// reserved word, nor an alias declared in the query itself.
func (v *Validator) unknownIdentifiers(sql string) []string {
	aliases := declaredAliases(sql)

	seen := map[string]struct{}{}
	var warnings []string
	for _, token := range identifierToken.FindAllString(sql, -1) {
		lower := strings.ToLower(token)
		if _, ok := reservedWords[lower]; ok {
			continue
		}
		if _, ok := v.knownTables[lower]; ok {
			continue
		}
		if _, ok := v.knownColumns[lower]; ok {
			continue
		}
		if _, ok := aliases[lower]; ok {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		warnings = append(warnings, fmt.Sprintf("unknown identifier %q", token))
	}
	return warnings
}

var (
	explicitAlias = regexp.MustCompile(`(?i)\bas\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	// FROM/JOIN table aliases: "FROM orders o" / "JOIN customers c".
	tableAlias = regexp.MustCompile(`(?i)\b(?:from|join)\s+[a-zA-Z_][a-zA-Z0-9_]*\s+(?:as\s+)?([a-zA-Z_][a-zA-Z0-9_]*)`)
	// CTE names: "WITH totals AS (" / ", totals AS (".
	cteAlias = regexp.MustCompile(`(?i)(?:\bwith\s+|,\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+as\s*\(`)
)

// declaredAliases gathers identifiers introduced by AS clauses and
// single-token table aliases. Heuristic on purpose: a missed alias
// costs a warning, not a failure.
func declaredAliases(sql string) map[string]struct{} {
	aliases := map[string]struct{}{}
	for _, m := range explicitAlias.FindAllStringSubmatch(sql, -1) {
		aliases[strings.ToLower(m[1])] = struct{}{}
	}
	for _, m := range tableAlias.FindAllStringSubmatch(sql, -1) {
		lower := strings.ToLower(m[1])
		if _, ok := reservedWords[lower]; ok {
			continue
		}
		aliases[lower] = struct{}{}
	}
	for _, m := range cteAlias.FindAllStringSubmatch(sql, -1) {
		aliases[strings.ToLower(m[1])] = struct{}{}
	}
	return aliases
}
