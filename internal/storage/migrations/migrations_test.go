package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFiles(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Contains(t, pg, "001_token_uris.sql")

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Contains(t, ch, "001_scan_records.sql")
}

func TestSplitStatements(t *testing.T) {
	sql := `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
}

func TestEmbeddedClickhouseMigrationsSplit(t *testing.T) {
	data, err := ClickhouseFS.ReadFile("clickhouse/001_scan_records.sql")
	require.NoError(t, err)

	stmts := splitStatements(string(data))
	require.Len(t, stmts, 1)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS scan_records"))
}

func TestSplitStatements_QuotedSemicolonsAndComments(t *testing.T) {
	sql := `INSERT INTO t VALUES ('a;b', 'it''s'); -- trailing; comment
SELECT '--not a comment';`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, `INSERT INTO t VALUES ('a;b', 'it''s')`, stmts[0])
	assert.Equal(t, `SELECT '--not a comment'`, stmts[1])
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/conway")
	require.NoError(t, err)
	assert.Equal(t, "conway", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
