package utils

import (
	"testing"
)

func TestGetStmtType(t *testing.T) {
	cases := []struct {
		sql string
		tp  StmtType
	}{
		{"SELECT * FROM t WHERE a = 1", StmtSelect},
		{"select a from t1 union select a from t2", StmtSelect},
		{"CREATE INDEX idx_t_a ON t (a)", StmtCreateIndex},
		{"DROP INDEX idx_t_a ON t", StmtDropIndex},
		{"CREATE TABLE t (a INT)", StmtCreateTable},
		{"USE test", StmtUseDB},
		{"INSERT INTO t VALUES (1)", StmtUnknown},
		// rejected by the parser, classified by keywords
		{"SELECT * FROM t WHERE a == 1 LIMIT", StmtSelect},
		{"create   index idx on t(a) where a > 1", StmtCreateIndex},
	}
	for _, c := range cases {
		if got := GetStmtType(c.sql); got != c.tp {
			t.Errorf("GetStmtType(%s) = %v, expected %v", c.sql, got, c.tp)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("SELECT * FROM sales WHERE amount > 100")
	b := Fingerprint("select *  from sales where amount > 250")
	c := Fingerprint("SELECT * FROM sales WHERE product_id > 100")
	if a != b {
		t.Errorf("queries differing only in literals should share a fingerprint: %v vs %v", a, b)
	}
	if a == c {
		t.Errorf("different queries should have different fingerprints")
	}
	if len(a) != 16 {
		t.Errorf("unexpected fingerprint %v", a)
	}
}

func TestParseCreateIndexStmt(t *testing.T) {
	idx, err := ParseCreateIndexStmt("CREATE INDEX idx_sales_composite ON sales (region, order_date);")
	must(err)
	if idx.TableName != "sales" || idx.IndexName != "idx_sales_composite" || len(idx.Columns) != 2 ||
		idx.Columns[0] != "region" || idx.Columns[1] != "order_date" {
		t.Errorf("unexpected index %+v", idx)
	}

	if _, err := ParseCreateIndexStmt("SELECT 1"); err == nil {
		t.Errorf("expected an error for a non DDL statement")
	}
	if _, err := ParseCreateIndexStmt("CREATE INDEX"); err == nil {
		t.Errorf("expected a parse error")
	}
}

func TestCollectTableNames(t *testing.T) {
	sql := `
SELECT MIN(mc.note) AS production_note, MIN(t.title) AS movie_title
FROM company_type ct, movie_companies mc, xxx.title t
WHERE ct.kind = 'production companies'
	AND ct.id = mc.company_type_id
	AND t.id = mc.movie_id`
	tables, err := CollectTableNamesFromSQL("test", sql)
	must(err)
	keys := tables.ToKeyList()
	expected := []string{"test.company_type", "test.movie_companies", "xxx.title"}
	if len(keys) != len(expected) {
		t.Fatalf("CollectTableNamesFromSQL = %v, expected %v", keys, expected)
	}
	for i := range keys {
		if keys[i] != expected[i] {
			t.Errorf("CollectTableNamesFromSQL = %v, expected %v", keys, expected)
		}
	}

	tables, err = CollectTableNamesFromSQL("test", "WITH c AS (SELECT * FROM t1) SELECT * FROM c JOIN t2 ON c.a = t2.a")
	must(err)
	if tables.Size() != 2 || tables.ContainsKey("test.c") {
		t.Errorf("CTE names should be excluded: %v", tables.String())
	}
}

func TestIsSystemTableName(t *testing.T) {
	if !IsSystemTableName(TableName{SchemaName: "INFORMATION_SCHEMA", TableName: "tables"}) {
		t.Errorf("information_schema should be a system schema")
	}
	if !IsSystemTableName(TableName{TableName: "sqlite_master"}) {
		t.Errorf("sqlite_master should be a system table")
	}
	if IsSystemTableName(TableName{SchemaName: "test", TableName: "sales"}) {
		t.Errorf("test.sales is a user table")
	}
}
