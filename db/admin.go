package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
	"github.com/rs/zerolog"
)

// QualifiedTableName returns table in schema as a quoted identifier. table must be the exact name of the table, e.g.
// as returned by TableNames or SanitizeTableName.
func QualifiedTableName(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// TruncateTables truncates tables in schema with CASCADE in a single transaction. If any table cannot be truncated
// (e.g. it does not exist) then all tables retain their content.
func TruncateTables(ctx context.Context, db pgxutil.DB, schema string, tables []string) error {
	if len(tables) == 0 {
		return nil
	}

	logger := zerolog.Ctx(ctx)
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		for _, table := range tables {
			_, err := tx.Exec(ctx, fmt.Sprintf("truncate %s cascade", QualifiedTableName(schema, table)))
			if err != nil {
				return fmt.Errorf("truncate %s.%s: %w", schema, table, err)
			}
			logger.Debug().Str("schema", schema).Str("table", table).Msg("truncated table")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

// TruncateAllTables truncates every table in schema.
func TruncateAllTables(ctx context.Context, db pgxutil.DB, schema string) error {
	tables, err := AllTableNames(ctx, db, schema)
	if err != nil {
		return err
	}

	return TruncateTables(ctx, db, schema, tables)
}

// WipeSchema drops schema with everything in it and creates it again empty. This is the fastest way to empty a
// database.
func WipeSchema(ctx context.Context, db pgxutil.DB, schema string) error {
	quoted := pgx.Identifier{schema}.Sanitize()

	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf("drop schema if exists %s cascade", quoted))
		if err != nil {
			return fmt.Errorf("drop schema %s: %w", schema, err)
		}

		_, err = tx.Exec(ctx, fmt.Sprintf("create schema %s", quoted))
		if err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("schema", schema).Msg("wiped schema")

	return nil
}
