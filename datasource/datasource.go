// Package datasource provides a pooled PostgreSQL data source for integration tests.
//
// A DataSource is built from the first of a list of locations that finds a database (see package location). It wraps a
// *pgxpool.Pool and applies a set of ConnSetupFuncs to every connection handed out by Acquire. By default this turns on
// logging of all statements on the server. It also offers the operations tests use to reset and snapshot state:
// truncating tables, wiping the schema, and copying table content to and from disk.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgit/db"
	"github.com/jackc/pgit/location"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ConnSetupFunc prepares a connection before Acquire returns it.
type ConnSetupFunc func(ctx context.Context, conn *pgx.Conn) error

// LogAllStatements sets log_statement to all for the session.
func LogAllStatements(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, "set log_statement = 'all'")
	if err != nil {
		return fmt.Errorf("enable statement logging: %w", err)
	}
	return nil
}

// CopyMode selects where COPY reads and writes dump files.
type CopyMode int

const (
	// CopyServer has the database server read and write the dump folder. The folder must be reachable from the server
	// and the user needs the pg_read_server_files and pg_write_server_files roles.
	CopyServer CopyMode = iota

	// CopyClient streams table content over the connection to and from a folder on the client.
	CopyClient
)

func (m CopyMode) String() string {
	switch m {
	case CopyServer:
		return "server"
	case CopyClient:
		return "client"
	default:
		return fmt.Sprintf("CopyMode(%d)", int(m))
	}
}

// ParseCopyMode parses "server" or "client".
func ParseCopyMode(s string) (CopyMode, error) {
	switch s {
	case "server":
		return CopyServer, nil
	case "client":
		return CopyClient, nil
	default:
		return 0, fmt.Errorf("unknown copy mode %q", s)
	}
}

type config struct {
	env           location.Environment
	envSet        bool
	schema        string
	dumpFolder    string
	copyMode      CopyMode
	connSetup     []ConnSetupFunc
	configurePool []func(*pgxpool.Config)
}

// Option configures a DataSource.
type Option func(*config)

// WithEnvironment sets the environment used to locate the database and the dump folder. The default is
// location.ProcessEnvironment(nil).
func WithEnvironment(env location.Environment) Option {
	return func(c *config) {
		c.env = env
		c.envSet = true
	}
}

// WithSchema sets the schema operated on. The default is "public".
func WithSchema(schema string) Option {
	return func(c *config) {
		c.schema = schema
	}
}

// WithDumpFolder sets the folder COPY reads and writes.
func WithDumpFolder(folder string) Option {
	return func(c *config) {
		c.dumpFolder = folder
	}
}

// WithCopyMode sets where dump files live. The default is CopyServer.
func WithCopyMode(mode CopyMode) Option {
	return func(c *config) {
		c.copyMode = mode
	}
}

// WithConnSetup replaces the functions Acquire runs on each connection. The default is LogAllStatements. Calling it
// with no arguments disables connection setup.
func WithConnSetup(fns ...ConnSetupFunc) Option {
	return func(c *config) {
		c.connSetup = fns
	}
}

// WithPoolConfig registers fn to adjust the pool configuration before the pool is created. It has no effect on
// FromPool.
func WithPoolConfig(fn func(*pgxpool.Config)) Option {
	return func(c *config) {
		c.configurePool = append(c.configurePool, fn)
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		schema:    db.DefaultSchema,
		connSetup: []ConnSetupFunc{LogAllStatements},
	}
	for _, o := range opts {
		o(c)
	}
	if !c.envSet {
		c.env = location.ProcessEnvironment(nil)
	}
	return c
}

// DataSource is a pool of connections to a located test database.
type DataSource struct {
	pool       *pgxpool.Pool
	descriptor *location.Descriptor

	env        location.Environment
	schema     string
	dumpFolder string
	copyMode   CopyMode
	connSetup  []ConnSetupFunc
}

// New locates a database with locations (see location.Locate) and creates a DataSource for it. The pool connects
// lazily so New does not fail when the database is down.
func New(ctx context.Context, locations []location.Location, useFallback bool, opts ...Option) (*DataSource, error) {
	c := newConfig(opts)

	descriptor, err := location.Locate(ctx, c.env, locations, useFallback)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(descriptor.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse config for %s: %w", descriptor.Redacted(), err)
	}
	for _, fn := range c.configurePool {
		fn(poolConfig)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool for %s: %w", descriptor.Redacted(), err)
	}

	ds := newDataSource(pool, c)
	ds.descriptor = descriptor

	zerolog.Ctx(ctx).Info().Str("database", descriptor.Redacted()).Msg("created data source")

	return ds, nil
}

// NewFromLocation is New with a single location and the fallback enabled.
func NewFromLocation(ctx context.Context, l location.Location, opts ...Option) (*DataSource, error) {
	return New(ctx, []location.Location{l}, true, opts...)
}

// NewFromProperty creates a DataSource for database on localhost with the port read from portProperty, falling back
// to the PG* environment variables.
func NewFromProperty(ctx context.Context, database, portProperty string, opts ...Option) (*DataSource, error) {
	return NewFromLocation(ctx, location.FromProperty(database, portProperty), opts...)
}

// NewFromDatabaseProperty is NewFromProperty with the port read from "postgresql.<database>.port".
func NewFromDatabaseProperty(ctx context.Context, database string, opts ...Option) (*DataSource, error) {
	return NewFromLocation(ctx, location.FromDatabaseProperty(database), opts...)
}

// FromPool wraps an existing pool. Close closes pool.
func FromPool(pool *pgxpool.Pool, opts ...Option) *DataSource {
	return newDataSource(pool, newConfig(opts))
}

func newDataSource(pool *pgxpool.Pool, c *config) *DataSource {
	return &DataSource{
		pool:       pool,
		env:        c.env,
		schema:     c.schema,
		dumpFolder: c.dumpFolder,
		copyMode:   c.copyMode,
		connSetup:  c.connSetup,
	}
}

// Pool returns the underlying pool. Connections acquired directly from it skip connection setup.
func (ds *DataSource) Pool() *pgxpool.Pool {
	return ds.pool
}

// Descriptor returns the located database or nil if ds was created with FromPool.
func (ds *DataSource) Descriptor() *location.Descriptor {
	return ds.descriptor
}

// Schema returns the schema ds operates on.
func (ds *DataSource) Schema() string {
	return ds.schema
}

// Close closes the pool.
func (ds *DataSource) Close() {
	ds.pool.Close()
}

var ErrConnSetup = errors.New("connection setup failed")

// Acquire returns a connection from the pool after running the connection setup functions on it. The caller must call
// Release on the returned connection. If setup fails the connection is released and an error wrapping ErrConnSetup is
// returned.
func (ds *DataSource) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := ds.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	for _, fn := range ds.connSetup {
		err := fn(ctx, conn.Conn())
		if err != nil {
			conn.Release()
			return nil, fmt.Errorf("%w: %w", ErrConnSetup, err)
		}
	}

	return conn, nil
}

// AcquireFunc acquires a connection with Acquire, calls fn with it, and releases it.
func (ds *DataSource) AcquireFunc(ctx context.Context, fn func(*pgxpool.Conn) error) error {
	conn, err := ds.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(conn)
}
