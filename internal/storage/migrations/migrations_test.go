package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPostgres struct {
	applied []string
	failOn  string
}

func (r *recordingPostgres) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	r.applied = append(r.applied, sql)
	return pgconn.CommandTag{}, nil
}

type recordingClickhouse struct {
	stmts []string
}

func (r *recordingClickhouse) Exec(_ context.Context, query string, _ ...any) error {
	r.stmts = append(r.stmts, query)
	return nil
}

func TestRunPostgresMigrations_AppliesInOrder(t *testing.T) {
	db := &recordingPostgres{}
	require.NoError(t, RunPostgresMigrations(context.Background(), db))

	require.Len(t, db.applied, 2)
	assert.Contains(t, db.applied[0], "CREATE TABLE IF NOT EXISTS tokens")
	assert.Contains(t, db.applied[1], "CREATE TABLE IF NOT EXISTS pending_transactions")
}

func TestRunPostgresMigrations_WrapsFailure(t *testing.T) {
	db := &recordingPostgres{failOn: "pending_transactions"}
	err := RunPostgresMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_pending_transactions.sql")
}

func TestRunClickhouseMigrations_SplitsStatements(t *testing.T) {
	conn := &recordingClickhouse{}
	require.NoError(t, RunClickhouseMigrations(context.Background(), conn))

	require.Len(t, conn.stmts, 1)
	assert.True(t, strings.HasPrefix(conn.stmts[0], "CREATE TABLE IF NOT EXISTS balance_snapshots"))
	assert.NotContains(t, conn.stmts[0], ";")
	assert.NotContains(t, conn.stmts[0], "--")
}

func TestSplitStatements(t *testing.T) {
	input := `
-- header
CREATE TABLE a (x UInt8);

-- second
CREATE TABLE b (y String);
`
	stmts := splitStatements(input)
	assert.Equal(t, []string{"CREATE TABLE a (x UInt8)", "CREATE TABLE b (y String)"}, stmts)
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b';"))
}
