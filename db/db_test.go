package db_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgit/db"
	"github.com/jackc/pgit/test/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgxutil"
	"github.com/jackc/testdb"
	"github.com/stretchr/testify/require"
)

var TestDBManager *testdb.Manager

func TestMain(m *testing.M) {
	TestDBManager = testutil.InitTestDBManager(m)
	os.Exit(m.Run())
}

func TestSanitizeTableName(t *testing.T) {
	for _, tc := range []struct {
		testName string
		table    string
		expected string
		errStr   string
	}{
		{testName: "plain", table: "foo", expected: "foo"},
		{testName: "mixed case and digits", table: "Foo_Bar2", expected: "foo_bar2"},
		{testName: "injection", table: "foo; drop table bar", expected: "foodroptablebar"},
		{testName: "quoted", table: `"foo"`, expected: "foo"},
		{testName: "schema qualified", table: "public.foo", expected: "publicfoo"},
		{testName: "empty", table: "", errStr: `invalid table name: ""`},
		{testName: "nothing left", table: "--;", errStr: `invalid table name: "--;"`},
	} {
		t.Run(tc.testName, func(t *testing.T) {
			sanitized, err := db.SanitizeTableName(tc.table)
			if tc.errStr == "" {
				require.NoError(t, err)
				require.Equal(t, tc.expected, sanitized)
			} else {
				require.EqualError(t, err, tc.errStr)
				require.ErrorIs(t, err, db.ErrInvalidTableName)
			}
		})
	}
}

func TestSanitizeTableNames(t *testing.T) {
	sanitized, err := db.SanitizeTableNames([]string{"Foo", "bar;"})
	require.NoError(t, err)
	require.Equal(t, []string{"foo", "bar"}, sanitized)

	_, err = db.SanitizeTableNames([]string{"foo", "';'"})
	require.ErrorIs(t, err, db.ErrInvalidTableName)
}

func TestQualifiedTableName(t *testing.T) {
	require.Equal(t, `"public"."foo"`, db.QualifiedTableName("public", "foo"))
	require.Equal(t, `"other"."MixedCase"`, db.QualifiedTableName("other", "MixedCase"))
	require.Equal(t, `"other"."we""ird"`, db.QualifiedTableName("other", `we"ird`))
}

func TestDumpFileName(t *testing.T) {
	require.Equal(t, "foo.dat", db.DumpFileName("foo"))
	require.Equal(t, "a_b.dat", db.DumpFileName("a/b"))
}

func TestTruncateTablesEmptyListIsNoop(t *testing.T) {
	// A nil DB would panic if any statement were run.
	err := db.TruncateTables(context.Background(), nil, "public", nil)
	require.NoError(t, err)
}

// recordingDB records the SQL executed through it and through transactions it begins.
type recordingDB struct {
	pgxutil.DB
	statements []string
	committed  bool
}

func (r *recordingDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &recordingTx{db: r}, nil
}

func (r *recordingDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	return pgconn.NewCommandTag(""), nil
}

type recordingTx struct {
	pgx.Tx
	db *recordingDB
}

func (tx *recordingTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return tx.db.Exec(ctx, sql, arguments...)
}

func (tx *recordingTx) Commit(ctx context.Context) error {
	tx.db.committed = true
	return nil
}

func (tx *recordingTx) Rollback(ctx context.Context) error {
	return nil
}

func TestTruncateTablesQualifiesWithSchema(t *testing.T) {
	rdb := &recordingDB{}
	err := db.TruncateTables(context.Background(), rdb, "other", []string{"foo", "Bar"})
	require.NoError(t, err)
	require.True(t, rdb.committed)
	require.Equal(t, []string{
		`truncate "other"."foo" cascade`,
		`truncate "other"."Bar" cascade`,
	}, rdb.statements)
}

func TestCopyTablesFolderQualifiesWithSchema(t *testing.T) {
	rdb := &recordingDB{}
	err := db.CopyTablesToFolder(context.Background(), rdb, "other", []string{"foo", "bar"}, "/dumps")
	require.NoError(t, err)
	err = db.CopyTablesFromFolder(context.Background(), rdb, "other", []string{"foo"}, "/o'dumps")
	require.NoError(t, err)
	require.Equal(t, []string{
		`copy "other"."foo" to '/dumps/foo.dat'`,
		`copy "other"."bar" to '/dumps/bar.dat'`,
		`copy "other"."foo" from '/o''dumps/foo.dat'`,
	}, rdb.statements)
}

func TestWipeSchemaStatements(t *testing.T) {
	rdb := &recordingDB{}
	err := db.WipeSchema(context.Background(), rdb, "other")
	require.NoError(t, err)
	require.True(t, rdb.committed)
	require.Equal(t, []string{
		`drop schema if exists "other" cascade`,
		`create schema "other"`,
	}, rdb.statements)
}
