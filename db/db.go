// Package db holds the statements pgit runs against a test database: schema introspection, truncation, schema wipes,
// and COPY based snapshots. Every function takes a pgxutil.DB so it works with a *pgx.Conn, a *pgxpool.Pool, or a
// pgx.Tx.
package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgxutil"
)

// DefaultSchema is the schema used when none is given.
const DefaultSchema = "public"

var ErrInvalidTableName = errors.New("invalid table name")

// ServerInfo describes the server a connection is attached to.
type ServerInfo struct {
	Version     string
	Database    string
	CurrentTime time.Time
}

// GetServerInfo returns the server version, the current database, and the current time from the database.
func GetServerInfo(ctx context.Context, db pgxutil.DB) (*ServerInfo, error) {
	info, err := pgxutil.SelectRow(ctx, db, "select version(), current_database(), now()", nil, pgx.RowToAddrOfStructByPos[ServerInfo])
	if err != nil {
		return nil, err
	}

	return info, nil
}

var tableNameStripRegexp = regexp.MustCompile(`[^0-9_a-zA-Z]`)

// SanitizeTableName turns a caller supplied table name into the exact name of the table. Every character that is not
// a letter, digit, or underscore is removed and the result is folded to lower case, as PostgreSQL does for an unquoted
// identifier.
func SanitizeTableName(table string) (string, error) {
	sanitized := strings.ToLower(tableNameStripRegexp.ReplaceAllString(table, ""))
	if sanitized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	return sanitized, nil
}

// SanitizeTableNames applies SanitizeTableName to each of tables.
func SanitizeTableNames(tables []string) ([]string, error) {
	sanitized := make([]string, len(tables))
	for i, table := range tables {
		var err error
		sanitized[i], err = SanitizeTableName(table)
		if err != nil {
			return nil, err
		}
	}
	return sanitized, nil
}
