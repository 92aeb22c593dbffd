package advisor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qw4990/sql_advisor/utils"
)

func keys(s utils.Set[ColumnReference]) []string {
	return s.ToKeyList()
}

func TestExtractColumnsResolvesAliases(t *testing.T) {
	q := `SELECT * FROM routes r JOIN airports a ON r.source_airport_id = a.airport_id WHERE a.country = 'US'`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"airports.country"}, keys(cols.Where))
	require.Equal(t, []string{"routes.source_airport_id", "airports.airport_id"}, keys(cols.Join))
	require.Equal(t, []string{"routes", "airports"}, cols.Tables)
	require.Equal(t, "airports", cols.Aliases["a"])
	require.Equal(t, "routes", cols.Aliases["r"])
	require.Equal(t, 0, cols.GroupBy.Size())
	require.Equal(t, 0, cols.OrderBy.Size())
}

func TestExtractColumnsClauses(t *testing.T) {
	q := `SELECT * FROM sales WHERE order_date BETWEEN '2022-01-01' AND '2022-12-31'
GROUP BY product_id
ORDER BY SUM(amount) DESC`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"sales.order_date"}, keys(cols.Where))
	require.Equal(t, []string{"sales.product_id"}, keys(cols.GroupBy))
	require.Equal(t, 0, cols.OrderBy.Size()) // SUM(amount) is an expression
	require.Equal(t, []string{"sales.order_date", "sales.product_id"}, keys(cols.All()))
}

func TestExtractColumnsSelectAliases(t *testing.T) {
	q := `SELECT a.country, COUNT(*) AS total_routes
FROM routes r JOIN airports a ON r.destination_airport_id = a.airport_id
GROUP BY a.country HAVING total_routes > 10 ORDER BY total_routes DESC`
	cols := ExtractColumns(q)
	for _, k := range keys(cols.All()) {
		require.NotContains(t, k, "total_routes")
	}
	require.Equal(t, []string{"airports.country"}, keys(cols.GroupBy))
	require.Equal(t, []string{"routes.destination_airport_id", "airports.airport_id"}, keys(cols.Join))
}

func TestExtractColumnsSkipsExpressions(t *testing.T) {
	q := `SELECT * FROM users WHERE LOWER(name) = 'bob' AND age + 1 > 30 AND YEAR(created_at) = 2020 AND status = 'active'`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"users.status"}, keys(cols.All()))
}

func TestExtractColumnsUnqualifiedWithSeveralTables(t *testing.T) {
	q := `SELECT * FROM orders o, customers c WHERE o.customer_id = c.id AND city = 'Paris'`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"orders.customer_id", "customers.id", PlaceholderTable + ".city"}, keys(cols.Where))
}

func TestExtractColumnsSubquery(t *testing.T) {
	q := `SELECT name FROM customers WHERE id IN (SELECT customer_id FROM orders WHERE total > 100) ORDER BY name`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"customers.id", "orders.total"}, keys(cols.Where))
	require.Equal(t, []string{"customers.name"}, keys(cols.OrderBy))
}

func TestExtractColumnsDerivedTable(t *testing.T) {
	q := `SELECT d.total FROM (SELECT customer_id, SUM(amount) AS total FROM orders GROUP BY customer_id) d WHERE d.total > 10`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"orders.customer_id"}, keys(cols.GroupBy))
	require.Equal(t, 0, cols.Where.Size()) // d is a derived table
}

func TestExtractColumnsKnownTables(t *testing.T) {
	q := `SELECT * FROM orders o JOIN ghosts g ON o.id = g.order_id WHERE o.status = 'x'`
	cols := ExtractColumnsWithTables(q, []string{"ORDERS"})
	require.Equal(t, []string{"orders.id"}, keys(cols.Join))
	require.Equal(t, []string{"orders.status"}, keys(cols.Where))
}

func TestExtractColumnsIgnoresCommentsAndStrings(t *testing.T) {
	q := `-- WHERE fake = 1
SELECT * FROM t /* WHERE other = 2 */ WHERE note = 'WHERE x = 1' AND flag = 1`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"t.note", "t.flag"}, keys(cols.Where))
}

func TestExtractColumnsQuotedIdentifiers(t *testing.T) {
	q := `SELECT * FROM "orders" o WHERE o."status" = 'paid' AND "region" = "eu" AND "kind" IN ('a', 'b') ORDER BY "created_at"`
	cols := ExtractColumns(q)
	require.Equal(t, []string{"orders"}, cols.Tables)
	require.Equal(t, []string{"orders.status", "orders.region", "orders.kind"}, keys(cols.Where))
	require.Equal(t, []string{"orders.created_at"}, keys(cols.OrderBy))

	q = "SELECT * FROM `orders` WHERE `orders`.`status` = \"paid\" AND note = \"WHERE x = 1\""
	cols = ExtractColumns(q)
	require.Equal(t, []string{"orders"}, cols.Tables)
	require.Equal(t, []string{"orders.status", "orders.note"}, keys(cols.Where))
}

func TestExtractColumnsMalformed(t *testing.T) {
	for _, q := range []string{"", "SELECT", "SELECT * FROM", "SELECT * FROM t WHERE (a = 1", "))) WHERE", "not sql at all"} {
		require.NotPanics(t, func() { ExtractColumns(q) }, q)
	}
}
