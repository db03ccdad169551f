package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

//go:embed migrations/*.sql
var fixtureMigrations embed.FS

var rootCmd = &cobra.Command{
	Use:   "setup_test_databases",
	Short: "Creates test databases for pgit",
	Long: `Creates the test database named by TEST_PGDATABASE (or PGDATABASE), applies the fixture schema, and clones it
TEST_DATABASE_COUNT times (default: number of CPUs) for github.com/jackc/testdb.

Connection settings are taken from the PG* environment variables. The test database name must end with _test.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		ctx := cmd.Context()

		devPool, err := pgxpool.New(ctx, "")
		if err != nil {
			return fmt.Errorf("connect to development database: %w", err)
		}
		defer devPool.Close()

		testConnConfig, err := pgx.ParseConfig("")
		if err != nil {
			return fmt.Errorf("parse test database URL: %w", err)
		}
		if testPGDatabase := os.Getenv("TEST_PGDATABASE"); testPGDatabase != "" {
			testConnConfig.Database = testPGDatabase
		}

		// Ensure test database name ends with _test before dropping it.
		if !strings.HasSuffix(testConnConfig.Database, "_test") {
			return fmt.Errorf("test database name %q must end with _test", testConnConfig.Database)
		}

		var testDatabaseCount int
		if s := os.Getenv("TEST_DATABASE_COUNT"); s != "" {
			testDatabaseCount, err = strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("parse TEST_DATABASE_COUNT: %w", err)
			}
		} else {
			testDatabaseCount = runtime.NumCPU()
		}

		testDatabaseNames := make([]string, testDatabaseCount)
		for i := range testDatabaseNames {
			testDatabaseNames[i] = fmt.Sprintf("%s_%d", testConnConfig.Database, i)
		}

		// The clones are independent so stale ones can be dropped concurrently. They must be gone before the template
		// is dropped.
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(4)
		for _, dbname := range testDatabaseNames {
			eg.Go(func() error {
				_, err := devPool.Exec(egCtx, fmt.Sprintf("drop database if exists %s with (force)", pgx.Identifier{dbname}.Sanitize()))
				if err != nil {
					return fmt.Errorf("drop test database %q: %w", dbname, err)
				}
				return nil
			})
		}
		err = eg.Wait()
		if err != nil {
			return err
		}

		_, err = devPool.Exec(ctx, fmt.Sprintf("drop database if exists %s", pgx.Identifier{testConnConfig.Database}.Sanitize()))
		if err != nil {
			return fmt.Errorf("drop test database %q: %w", testConnConfig.Database, err)
		}

		_, err = devPool.Exec(ctx, fmt.Sprintf("create database %s", pgx.Identifier{testConnConfig.Database}.Sanitize()))
		if err != nil {
			return fmt.Errorf("create test database %q: %w", testConnConfig.Database, err)
		}

		err = migrateFixtures(ctx, testConnConfig)
		if err != nil {
			return err
		}

		testConn, err := pgx.ConnectConfig(ctx, testConnConfig)
		if err != nil {
			return fmt.Errorf("connect to test database: %w", err)
		}

		_, err = testConn.Exec(ctx, `create schema testdb`)
		if err != nil {
			return fmt.Errorf("create testdb schema: %w", err)
		}

		_, err = testConn.Exec(ctx, `create table testdb.databases (name text primary key, acquirer_pid int)`)
		if err != nil {
			return fmt.Errorf("create testdb.databases table: %w", err)
		}

		for _, dbname := range testDatabaseNames {
			_, err = testConn.Exec(ctx, `insert into testdb.databases (name) values ($1)`, dbname)
			if err != nil {
				return fmt.Errorf("insert into testdb.databases: %w", err)
			}
		}

		err = testConn.Close(ctx)
		if err != nil {
			return fmt.Errorf("close test connection: %w", err)
		}

		// Cloning from a template requires that nobody is connected to it, so this is sequential.
		for _, dbname := range testDatabaseNames {
			_, err = devPool.Exec(ctx, fmt.Sprintf("create database %s template = %s", pgx.Identifier{dbname}.Sanitize(), pgx.Identifier{testConnConfig.Database}.Sanitize()))
			if err != nil {
				return fmt.Errorf("create test database %q: %w", dbname, err)
			}
		}

		fmt.Printf("DATABASE_URL=postgres:///%s\n", testConnConfig.Database)

		return nil
	},
}

// migrateFixtures applies the embedded fixture migrations to the test database.
func migrateFixtures(ctx context.Context, connConfig *pgx.ConnConfig) error {
	sqlDB := stdlib.OpenDB(*connConfig)
	defer sqlDB.Close()

	_, err := sqlDB.ExecContext(ctx, "create schema if not exists goose")
	if err != nil {
		return fmt.Errorf("create goose schema: %w", err)
	}

	goose.SetBaseFS(fixtureMigrations)
	err = goose.SetDialect("postgres")
	if err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	err = goose.UpContext(ctx, sqlDB, "migrations")
	if err != nil {
		return fmt.Errorf("migrate test database: %w", err)
	}

	return nil
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

// Keep the goose version table out of the public schema so it is not truncated or ordered with the fixtures.
func init() {
	goose.SetTableName("goose.goose_db_version")
}
