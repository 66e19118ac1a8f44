package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSelectOnly(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want bool
	}{
		{"simple select", "SELECT * FROM t", true},
		{"parenthesized union", "(SELECT a FROM t) UNION ALL (SELECT b FROM t)", true},
		{"cte", "WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"lowercase select", "select product, amount from sales order by amount desc limit 1", true},
		{"leading whitespace", "   SELECT 1", true},
		{"stacked drop", "SELECT 1; DROP TABLE t", false},
		{"update statement", "UPDATE t SET a=1", false},
		{"trailing comment", "SELECT * FROM t -- DROP", false},
		{"block comment", "SELECT /* hidden */ * FROM t", false},
		{"insert statement", "INSERT INTO t VALUES (1)", false},
		{"delete inside select", "SELECT * FROM t WHERE a IN (SELECT b FROM t); DELETE FROM t", false},
		{"truncate", "TRUNCATE t", false},
		{"empty", "", false},
		{"column name containing keyword", "SELECT created_at FROM t", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsSelectOnly(tc.sql))
		})
	}
}

func TestReferencesOnlyTable(t *testing.T) {
	cases := []struct {
		name    string
		sql     string
		allowed string
		want    bool
	}{
		{"single table", "SELECT a FROM sales", "sales", true},
		{"quoted mixed case", `SELECT a FROM "Sales"`, "sales", true},
		{"uppercase keyword", "SELECT a FROM SALES WHERE a > 1", "sales", true},
		{"join other table", "SELECT a FROM sales JOIN other ON sales.id = other.id", "sales", false},
		{"different table", "SELECT a FROM customers", "sales", false},
		{"no table reference", "SELECT 1", "sales", false},
		{"subquery same table", "SELECT * FROM (SELECT a FROM sales) AS s", "sales", true},
		{"union same table", "(SELECT a FROM sales) UNION ALL (SELECT b FROM sales)", "sales", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ReferencesOnlyTable(tc.sql, tc.allowed))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "sales", Normalize(` "Sales" `))
	assert.Equal(t, "", Normalize(""))
}
