package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgit/lib/tableorder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgxutil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const tableNamesSQL = `select tablename
from pg_tables
where schemaname = $1
order by tablename`

const foreignKeysSQL = `select ft.relname, tt.relname
from pg_constraint as c
	join pg_namespace as n on c.connamespace = n.oid
	join pg_class as ft on c.conrelid = ft.oid
	join pg_class as tt on c.confrelid = tt.oid
where n.nspname = $1
	and c.contype = 'f'
	and ft.relnamespace = n.oid
	and tt.relnamespace = n.oid`

// TableNames returns the names of the tables in schema.
func TableNames(ctx context.Context, db pgxutil.DB, schema string) ([]string, error) {
	tables, err := pgxutil.Select(ctx, db, tableNamesSQL, []any{schema}, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables in schema %s: %w", schema, err)
	}

	return tables, nil
}

// ForeignKeys returns an edge for every foreign key constraint in schema.
func ForeignKeys(ctx context.Context, db pgxutil.DB, schema string) ([]tableorder.Edge, error) {
	edges, err := pgxutil.Select(ctx, db, foreignKeysSQL, []any{schema}, pgx.RowToStructByPos[tableorder.Edge])
	if err != nil {
		return nil, fmt.Errorf("list foreign keys in schema %s: %w", schema, err)
	}

	return edges, nil
}

// AllTableNames returns the names of the tables in schema ordered so tables with foreign keys come after the tables
// they reference. If tables reference each other a *tableorder.CycleError is returned.
//
// When db is a *pgxpool.Pool the catalog queries run concurrently on separate connections.
func AllTableNames(ctx context.Context, db pgxutil.DB, schema string) ([]string, error) {
	var tables []string
	var edges []tableorder.Edge

	if pool, ok := db.(*pgxpool.Pool); ok {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			var err error
			tables, err = TableNames(egCtx, pool, schema)
			return err
		})
		eg.Go(func() error {
			var err error
			edges, err = ForeignKeys(egCtx, pool, schema)
			return err
		})
		err := eg.Wait()
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		tables, err = TableNames(ctx, db, schema)
		if err != nil {
			return nil, err
		}

		edges, err = ForeignKeys(ctx, db, schema)
		if err != nil {
			return nil, err
		}
	}

	ordered, err := tableorder.Order(tables, edges)
	if err != nil {
		return nil, fmt.Errorf("order tables in schema %s: %w", schema, err)
	}

	zerolog.Ctx(ctx).Debug().Str("schema", schema).Strs("tables", ordered).Msg("ordered tables")

	return ordered, nil
}
