package datasource_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgit/datasource"
	"github.com/jackc/pgit/lib/tableorder"
	"github.com/jackc/pgit/test/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// setApplicationName is a connection setup that does not require superuser like LogAllStatements does.
func setApplicationName(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, "set application_name = 'pgit_test'")
	return err
}

func acquireDataSource(t *testing.T, ctx context.Context, opts ...datasource.Option) *datasource.DataSource {
	t.Helper()
	testutil.SkipWithoutDB(t, TestDBManager)

	pool := TestDBManager.AcquireDB(t, ctx).PoolConnect(t, ctx)
	return datasource.FromPool(pool, append([]datasource.Option{datasource.WithConnSetup(setApplicationName)}, opts...)...)
}

func insertFixtureRows(t *testing.T, ctx context.Context, ds *datasource.DataSource) {
	t.Helper()

	err := ds.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			for _, id := range []string{"a", "b", "c"} {
				_, err := tx.Exec(ctx, "insert into foo values ($1)", id)
				if err != nil {
					return err
				}
			}
			for _, row := range [][2]string{{"1", "a"}, {"2", "a"}, {"3", "b"}} {
				_, err := tx.Exec(ctx, "insert into bar values ($1, $2)", row[0], row[1])
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	require.NoError(t, err)
}

func requireRowCount(t *testing.T, ctx context.Context, ds *datasource.DataSource, foo, bar int) {
	t.Helper()

	var fooCount, barCount int
	err := ds.Pool().QueryRow(ctx, "select (select count(*) from foo), (select count(*) from bar)").Scan(&fooCount, &barCount)
	require.NoError(t, err)
	require.Equal(t, foo, fooCount)
	require.Equal(t, bar, barCount)
}

func TestAcquireRunsConnSetup(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx)

	conn, err := ds.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	var applicationName string
	err = conn.QueryRow(ctx, "select current_setting('application_name')").Scan(&applicationName)
	require.NoError(t, err)
	require.Equal(t, "pgit_test", applicationName)
}

func TestAcquireConnSetupFailureReleasesConn(t *testing.T) {
	ctx := context.Background()
	setupErr := errors.New("setup failed")
	ds := acquireDataSource(t, ctx, datasource.WithConnSetup(func(ctx context.Context, conn *pgx.Conn) error {
		return setupErr
	}))

	_, err := ds.Acquire(ctx)
	require.ErrorIs(t, err, datasource.ErrConnSetup)
	require.ErrorIs(t, err, setupErr)
	require.EqualValues(t, 0, ds.Pool().Stat().AcquiredConns())
}

func TestAllTableNamesOrdersByForeignKey(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx)

	tables, err := ds.AllTableNames(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	require.Equal(t, []string{"fin", "foo", "bar"}, tables)
}

func TestAllTableNamesCycle(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx, datasource.WithSchema("cyclic_ds"))

	_, err := ds.Pool().Exec(ctx, `create schema cyclic_ds;
create table cyclic_ds.x (id int primary key, parent_id int references cyclic_ds.x)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := ds.Pool().Exec(context.Background(), `drop schema cyclic_ds cascade`)
		require.NoError(t, err)
	})

	_, err = ds.AllTableNames(ctx)
	var cycleErr *tableorder.CycleError
	require.True(t, errors.As(err, &cycleErr))
	require.Equal(t, []string{"x"}, cycleErr.Tables)
}

func TestTruncateTables(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx)

	insertFixtureRows(t, ctx, ds)
	requireRowCount(t, ctx, ds, 3, 3)

	err := ds.TruncateTables(ctx, "bar")
	require.NoError(t, err)
	requireRowCount(t, ctx, ds, 3, 0)

	err = ds.TruncateTables(ctx, "foo", "missing")
	require.Error(t, err)
	requireRowCount(t, ctx, ds, 3, 0)

	err = ds.TruncateAllTables(ctx)
	require.NoError(t, err)
	requireRowCount(t, ctx, ds, 0, 0)
}

func TestCopyTablesToAndFromDiskClient(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx, datasource.WithCopyMode(datasource.CopyClient), datasource.WithDumpFolder(t.TempDir()))

	err := ds.TruncateAllTables(ctx)
	require.NoError(t, err)
	insertFixtureRows(t, ctx, ds)
	requireRowCount(t, ctx, ds, 3, 3)

	err = ds.CopyAllTablesToDisk(ctx)
	require.NoError(t, err)

	err = ds.TruncateAllTables(ctx)
	require.NoError(t, err)
	requireRowCount(t, ctx, ds, 0, 0)

	err = ds.CopyAllTablesFromDisk(ctx)
	require.NoError(t, err)
	requireRowCount(t, ctx, ds, 3, 3)
}

func TestCopyTablesToAndFromDiskServer(t *testing.T) {
	folder := os.Getenv("PGIT_TEST_SERVER_DUMP_FOLDER")
	if folder == "" {
		t.Skip("PGIT_TEST_SERVER_DUMP_FOLDER is not set (must be a folder writable by the database server)")
	}

	ctx := context.Background()
	ds := acquireDataSource(t, ctx, datasource.WithDumpFolder(folder))

	insertFixtureRows(t, ctx, ds)

	err := ds.CopyTablesToDisk(ctx, "foo", "bar")
	require.NoError(t, err)

	err = ds.TruncateTables(ctx, "foo", "bar")
	require.NoError(t, err)
	requireRowCount(t, ctx, ds, 0, 0)

	err = ds.CopyTablesFromDisk(ctx, "foo", "bar")
	require.NoError(t, err)
	requireRowCount(t, ctx, ds, 3, 3)
}

func TestWipe(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx, datasource.WithSchema("wipe_ds"))

	_, err := ds.Pool().Exec(ctx, `create schema wipe_ds; create table wipe_ds.t (id int)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := ds.Pool().Exec(context.Background(), `drop schema if exists wipe_ds cascade`)
		require.NoError(t, err)
	})

	err = ds.Wipe(ctx)
	require.NoError(t, err)

	tables, err := ds.AllTableNames(ctx)
	require.NoError(t, err)
	require.Empty(t, tables)
}

func TestOperationsStayInSchema(t *testing.T) {
	ctx := context.Background()
	ds := acquireDataSource(t, ctx,
		datasource.WithSchema("other"),
		datasource.WithCopyMode(datasource.CopyClient),
		datasource.WithDumpFolder(t.TempDir()),
	)

	_, err := ds.Pool().Exec(ctx, `create schema other;
create table other.foo (id text primary key);
insert into other.foo (id) values ('x'), ('y')`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, err := ds.Pool().Exec(context.Background(), `drop schema other cascade`)
		require.NoError(t, err)
	})
	insertFixtureRows(t, ctx, ds)

	countOtherFoo := func() int {
		var n int
		err := ds.Pool().QueryRow(ctx, "select count(*) from other.foo").Scan(&n)
		require.NoError(t, err)
		return n
	}

	err = ds.CopyAllTablesToDisk(ctx)
	require.NoError(t, err)

	err = ds.TruncateAllTables(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, countOtherFoo())
	requireRowCount(t, ctx, ds, 3, 3)

	err = ds.CopyTablesFromDisk(ctx, "FOO")
	require.NoError(t, err)
	require.Equal(t, 2, countOtherFoo())
	requireRowCount(t, ctx, ds, 3, 3)

	err = ds.TruncateTables(ctx, "foo")
	require.NoError(t, err)
	require.Equal(t, 0, countOtherFoo())
	requireRowCount(t, ctx, ds, 3, 3)
}
