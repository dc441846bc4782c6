// Package suggest inspects finished SQL and produces advisory
// performance hints plus a plain-language execution breakdown. It is
// purely textual; nothing here talks to the backend.
package suggest

import (
	"fmt"
	"regexp"
)

var (
	selectStar   = regexp.MustCompile(`(?i)select\s+\*`)
	joinClause   = regexp.MustCompile(`(?i)\b(?:left|right|full|inner|cross)?\s*join\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	fromClause   = regexp.MustCompile(`(?i)\bfrom\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	commaFrom    = regexp.MustCompile(`(?i)\bfrom\s+[a-zA-Z_][a-zA-Z0-9_.]*(?:\s+[a-zA-Z_][a-zA-Z0-9_]*)?\s*,`)
	notIn        = regexp.MustCompile(`(?i)\bnot\s+in\s*\(`)
	orderBy      = regexp.MustCompile(`(?i)\border\s+by\b`)
	groupBy      = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
	havingWord   = regexp.MustCompile(`(?i)\bhaving\b`)
	limitWord    = regexp.MustCompile(`(?i)\blimit\b`)
	distinctWord = regexp.MustCompile(`(?i)\bdistinct\b`)
	whereWord    = regexp.MustCompile(`(?i)\bwhere\b`)
)

// Hints returns advisory notes about potentially expensive constructs
// in the query. A nil slice means nothing stood out.
func Hints(sqlText string) []string {
	masked := maskLiterals(sqlText)

	var hints []string
	if selectStar.MatchString(masked) {
		hints = append(hints, "select only the columns you need instead of SELECT *")
	}
	joins := joinClause.FindAllString(masked, -1)
	if len(joins) > 3 {
		hints = append(hints, fmt.Sprintf("query joins %d tables; a pre-joined summary table may be cheaper", len(joins)+1))
	}
	if len(joins) == 0 && commaFrom.MatchString(masked) {
		hints = append(hints, "comma-separated FROM without explicit JOIN conditions risks a cartesian product")
	}
	if notIn.MatchString(masked) {
		hints = append(hints, "NOT IN over a subquery can be slow on large sets; NOT EXISTS usually performs better")
	}
	if distinctWord.MatchString(masked) {
		hints = append(hints, "DISTINCT forces a deduplication pass; drop it if duplicates are impossible")
	}
	if orderBy.MatchString(masked) && !limitWord.MatchString(masked) {
		hints = append(hints, "ORDER BY without LIMIT sorts the full result; add LIMIT when only the top rows matter")
	}
	return hints
}

// Breakdown narrates how the backend evaluates the query, one step per
// entry, in execution order.
func Breakdown(sqlText string) []string {
	masked := maskLiterals(sqlText)

	var steps []string
	if match := fromClause.FindStringSubmatch(masked); match != nil {
		steps = append(steps, fmt.Sprintf("scan %s", match[1]))
	}
	for _, join := range joinClause.FindAllStringSubmatch(masked, -1) {
		steps = append(steps, fmt.Sprintf("join %s on the matching rows", join[1]))
	}
	if whereWord.MatchString(masked) {
		steps = append(steps, "filter rows with the WHERE conditions")
	}
	if groupBy.MatchString(masked) {
		steps = append(steps, "group the surviving rows and compute aggregates")
	}
	if havingWord.MatchString(masked) {
		steps = append(steps, "filter groups with the HAVING conditions")
	}
	if orderBy.MatchString(masked) {
		steps = append(steps, "sort the result")
	}
	if limitWord.MatchString(masked) {
		steps = append(steps, "cap the output at the LIMIT")
	}
	return steps
}

// maskLiterals blanks single-quoted strings so literal values never
// trip the clause scans. Doubled quotes toggle the state twice, which
// keeps escaped quotes inside the mask.
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
