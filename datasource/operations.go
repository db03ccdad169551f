package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgit/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DumpFolderProperty names the property holding the dump folder.
const DumpFolderProperty = "postgresql.dump.folder"

// TruncateTables truncates tables of the schema in a single transaction. If one fails (e.g. a listed table does not
// exist), all tables retain their content. Table names are sanitized with db.SanitizeTableName.
func (ds *DataSource) TruncateTables(ctx context.Context, tables ...string) error {
	sanitized, err := db.SanitizeTableNames(tables)
	if err != nil {
		return err
	}
	return db.TruncateTables(ctx, ds.pool, ds.schema, sanitized)
}

// TruncateAllTables truncates every table returned by AllTableNames.
func (ds *DataSource) TruncateAllTables(ctx context.Context) error {
	return db.TruncateAllTables(ctx, ds.pool, ds.schema)
}

// Wipe drops and recreates the schema.
func (ds *DataSource) Wipe(ctx context.Context) error {
	return db.WipeSchema(ctx, ds.pool, ds.schema)
}

// AllTableNames lists the tables in the schema ordered so that tables with foreign keys come after the tables they
// refer to. If tables reference each other a *tableorder.CycleError is returned.
func (ds *DataSource) AllTableNames(ctx context.Context) ([]string, error) {
	return db.AllTableNames(ctx, ds.pool, ds.schema)
}

// DumpFolder returns the folder dump files are read from and written to. It is, in order of preference, the folder
// given with WithDumpFolder, the property postgresql.dump.folder, or the pg_dumps directory under os.TempDir. The
// pg_dumps directory is created if it does not exist.
func (ds *DataSource) DumpFolder() (string, error) {
	if ds.dumpFolder != "" {
		return ds.dumpFolder, nil
	}

	if folder, ok := ds.env.Property(DumpFolderProperty); ok && folder != "" {
		return folder, nil
	}

	folder := filepath.Join(os.TempDir(), "pg_dumps")
	err := os.MkdirAll(folder, 0o777)
	if err != nil {
		return "", fmt.Errorf("could not make temp dir for postgres dumps: %w", err)
	}

	return folder, nil
}

// CopyTablesToDisk copies the content of tables of the schema to the dump folder. Table names are sanitized with
// db.SanitizeTableName.
func (ds *DataSource) CopyTablesToDisk(ctx context.Context, tables ...string) error {
	sanitized, err := db.SanitizeTableNames(tables)
	if err != nil {
		return err
	}
	return ds.copyData(ctx, sanitized, db.CopyTo)
}

// CopyAllTablesToDisk copies the content of every table returned by AllTableNames to the dump folder. Mixed case
// table names are used exactly.
func (ds *DataSource) CopyAllTablesToDisk(ctx context.Context) error {
	tables, err := ds.AllTableNames(ctx)
	if err != nil {
		return err
	}
	return ds.copyData(ctx, tables, db.CopyTo)
}

// CopyTablesFromDisk loads tables of the schema from the dump folder. Tables must be given in foreign key order. Table
// names are sanitized with db.SanitizeTableName.
func (ds *DataSource) CopyTablesFromDisk(ctx context.Context, tables ...string) error {
	sanitized, err := db.SanitizeTableNames(tables)
	if err != nil {
		return err
	}
	return ds.copyData(ctx, sanitized, db.CopyFrom)
}

// CopyAllTablesFromDisk loads every table returned by AllTableNames from the dump folder.
func (ds *DataSource) CopyAllTablesFromDisk(ctx context.Context) error {
	tables, err := ds.AllTableNames(ctx)
	if err != nil {
		return err
	}
	return ds.copyData(ctx, tables, db.CopyFrom)
}

func (ds *DataSource) copyData(ctx context.Context, tables []string, direction db.Direction) error {
	folder, err := ds.DumpFolder()
	if err != nil {
		return err
	}

	switch ds.copyMode {
	case CopyServer:
		if direction == db.CopyTo {
			return db.CopyTablesToFolder(ctx, ds.pool, ds.schema, tables, folder)
		}
		return db.CopyTablesFromFolder(ctx, ds.pool, ds.schema, tables, folder)

	case CopyClient:
		if direction == db.CopyTo {
			err := os.MkdirAll(folder, 0o777)
			if err != nil {
				return fmt.Errorf("create dump folder: %w", err)
			}
		}

		return ds.pool.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
			if direction == db.CopyTo {
				return db.CopyTablesToLocalFolder(ctx, conn.Conn().PgConn(), ds.schema, tables, folder)
			}
			return db.CopyTablesFromLocalFolder(ctx, conn.Conn().PgConn(), ds.schema, tables, folder)
		})

	default:
		return fmt.Errorf("unknown copy mode %v", ds.copyMode)
	}
}
