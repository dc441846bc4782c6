// Package template ships a small library of ready-made analytics
// queries users can run or adapt instead of phrasing a question from
// scratch.
package template

import "sort"

type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
	SQL         string `json:"sql"`
}

var builtin = []Template{
	{
		ID:          "sales_trends",
		Name:        "Monthly sales trends",
		Description: "Revenue and order counts per month with month-over-month change.",
		Category:    "sales",
		Difficulty:  "beginner",
		SQL: `WITH monthly AS (
    SELECT
        DATE_TRUNC('month', order_date) AS month,
        COUNT(*) AS orders,
        SUM(total) AS revenue
    FROM orders
    GROUP BY 1
)
SELECT
    month,
    orders,
    revenue,
    revenue - LAG(revenue) OVER (ORDER BY month) AS revenue_change
FROM monthly
ORDER BY month`,
	},
	{
		ID:          "customer_lifetime_value",
		Name:        "Customer lifetime value",
		Description: "Total spend, order count, and active span per customer.",
		Category:    "customers",
		Difficulty:  "intermediate",
		SQL: `SELECT
    c.customer_id,
    COUNT(o.order_id) AS orders,
    SUM(o.total) AS lifetime_value,
    MIN(o.order_date) AS first_order,
    MAX(o.order_date) AS last_order
FROM customers c
JOIN orders o ON o.customer_id = c.customer_id
GROUP BY c.customer_id
ORDER BY lifetime_value DESC
LIMIT 100`,
	},
	{
		ID:          "rfm_analysis",
		Name:        "RFM segmentation",
		Description: "Scores customers by recency, frequency, and monetary value quartiles.",
		Category:    "customers",
		Difficulty:  "advanced",
		SQL: `WITH metrics AS (
    SELECT
        customer_id,
        MAX(order_date) AS last_order,
        COUNT(*) AS frequency,
        SUM(total) AS monetary
    FROM orders
    GROUP BY customer_id
)
SELECT
    customer_id,
    NTILE(4) OVER (ORDER BY last_order) AS recency_score,
    NTILE(4) OVER (ORDER BY frequency) AS frequency_score,
    NTILE(4) OVER (ORDER BY monetary) AS monetary_score
FROM metrics
ORDER BY recency_score DESC, frequency_score DESC, monetary_score DESC`,
	},
	{
		ID:          "category_performance",
		Name:        "Category performance",
		Description: "Revenue share and order counts per product category.",
		Category:    "products",
		Difficulty:  "beginner",
		SQL: `SELECT
    p.category,
    COUNT(DISTINCT o.order_id) AS orders,
    SUM(oi.quantity * oi.unit_price) AS revenue
FROM order_items oi
JOIN products p ON p.product_id = oi.product_id
JOIN orders o ON o.order_id = oi.order_id
GROUP BY p.category
ORDER BY revenue DESC`,
	},
}

// List returns the built-in templates sorted by ID. Callers receive a
// copy and may mutate it freely.
func List() []Template {
	out := make([]Template, len(builtin))
	copy(out, builtin)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func Get(id string) (Template, bool) {
	for _, tpl := range builtin {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return Template{}, false
}

func ByCategory(category string) []Template {
	var out []Template
	for _, tpl := range List() {
		if tpl.Category == category {
			out = append(out, tpl)
		}
	}
	return out
}

// Categories returns the distinct template categories, sorted.
func Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tpl := range builtin {
		if _, ok := seen[tpl.Category]; ok {
			continue
		}
		seen[tpl.Category] = struct{}{}
		out = append(out, tpl.Category)
	}
	sort.Strings(out)
	return out
}
