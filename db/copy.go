package db

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgxutil"
	"github.com/rs/zerolog"
)

// Direction is the direction of a COPY statement.
type Direction string

const (
	CopyTo   Direction = "to"
	CopyFrom Direction = "from"
)

var dumpFileNameReplacer = strings.NewReplacer("/", "_", string(filepath.Separator), "_")

// DumpFileName returns the name of the file holding the content of table.
func DumpFileName(table string) string {
	return dumpFileNameReplacer.Replace(table) + ".dat"
}

// quoteLiteral quotes s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CopyTablesToFolder asks the server to write the content of each table in schema to <folder>/<table>.dat. folder is
// a path on the database server.
func CopyTablesToFolder(ctx context.Context, db pgxutil.DB, schema string, tables []string, folder string) error {
	return copyTablesServerSide(ctx, db, schema, tables, folder, CopyTo)
}

// CopyTablesFromFolder asks the server to load the content of each table in schema from <folder>/<table>.dat. Tables
// must be given in foreign key order (see AllTableNames).
func CopyTablesFromFolder(ctx context.Context, db pgxutil.DB, schema string, tables []string, folder string) error {
	return copyTablesServerSide(ctx, db, schema, tables, folder, CopyFrom)
}

func copyTablesServerSide(ctx context.Context, db pgxutil.DB, schema string, tables []string, folder string, direction Direction) error {
	logger := zerolog.Ctx(ctx)
	for _, table := range tables {
		path := filepath.Join(folder, DumpFileName(table))
		sql := fmt.Sprintf("copy %s %s %s", QualifiedTableName(schema, table), direction, quoteLiteral(path))
		_, err := db.Exec(ctx, sql)
		if err != nil {
			return fmt.Errorf("copy %s.%s %s %s: %w", schema, table, direction, path, err)
		}
		logger.Debug().Str("schema", schema).Str("table", table).Str("direction", string(direction)).Str("path", path).Msg("copied table")
	}

	return nil
}

// CopyTableToWriter streams the content of table in schema to w in text format.
func CopyTableToWriter(ctx context.Context, conn *pgconn.PgConn, schema, table string, w io.Writer) (int64, error) {
	ct, err := conn.CopyTo(ctx, w, fmt.Sprintf("copy %s to stdout", QualifiedTableName(schema, table)))
	if err != nil {
		return 0, fmt.Errorf("copy %s.%s to stdout: %w", schema, table, err)
	}

	return ct.RowsAffected(), nil
}

// CopyTableFromReader loads table in schema from r in text format.
func CopyTableFromReader(ctx context.Context, conn *pgconn.PgConn, schema, table string, r io.Reader) (int64, error) {
	ct, err := conn.CopyFrom(ctx, r, fmt.Sprintf("copy %s from stdin", QualifiedTableName(schema, table)))
	if err != nil {
		return 0, fmt.Errorf("copy %s.%s from stdin: %w", schema, table, err)
	}

	return ct.RowsAffected(), nil
}

// CopyTablesToLocalFolder streams the content of each table in schema to <folder>/<table>.dat on the client.
func CopyTablesToLocalFolder(ctx context.Context, conn *pgconn.PgConn, schema string, tables []string, folder string) error {
	logger := zerolog.Ctx(ctx)
	for _, table := range tables {
		path := filepath.Join(folder, DumpFileName(table))
		rows, err := copyTableToFile(ctx, conn, schema, table, path)
		if err != nil {
			return err
		}
		logger.Debug().Str("schema", schema).Str("table", table).Str("path", path).Int64("rows", rows).Msg("dumped table")
	}

	return nil
}

func copyTableToFile(ctx context.Context, conn *pgconn.PgConn, schema, table, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create dump file for %s: %w", table, err)
	}

	rows, err := CopyTableToWriter(ctx, conn, schema, table, f)
	if err != nil {
		f.Close()
		return 0, err
	}

	err = f.Close()
	if err != nil {
		return 0, fmt.Errorf("close dump file for %s: %w", table, err)
	}

	return rows, nil
}

// CopyTablesFromLocalFolder loads each table in schema from <folder>/<table>.dat on the client. Tables must be given
// in foreign key order.
func CopyTablesFromLocalFolder(ctx context.Context, conn *pgconn.PgConn, schema string, tables []string, folder string) error {
	logger := zerolog.Ctx(ctx)
	for _, table := range tables {
		path := filepath.Join(folder, DumpFileName(table))
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open dump file for %s: %w", table, err)
		}

		rows, err := CopyTableFromReader(ctx, conn, schema, table, f)
		f.Close()
		if err != nil {
			return err
		}
		logger.Debug().Str("schema", schema).Str("table", table).Str("path", path).Int64("rows", rows).Msg("restored table")
	}

	return nil
}
