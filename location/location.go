// Package location finds the PostgreSQL database an integration test should run against.
//
// A database is located by trying a list of Locations in order. Each Location is a pure function of an Environment,
// which holds the process inputs (environment variables, properties, and the current user name) so that the search
// can be reproduced in tests without touching the real process environment.
package location

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultPort is the port used when a location does not specify one.
const DefaultPort = 5432

var ErrDatabaseNotFound = errors.New("cannot locate database")

// Descriptor describes how to connect to a located database.
type Descriptor struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// Params are extra connection parameters such as sslmode. nil when there are none.
	Params url.Values
}

// ConnString returns d as a postgres:// URL suitable for pgx.ParseConfig and pgxpool.ParseConfig.
func (d *Descriptor) ConnString() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if len(d.Params) > 0 {
		u.RawQuery = d.Params.Encode()
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}

	return u.String()
}

// Redacted returns the connection string with the password replaced.
func (d *Descriptor) Redacted() string {
	if d.Password == "" {
		return d.ConnString()
	}
	redacted := *d
	redacted.Password = "xxxxx"
	return redacted.ConnString()
}

// Properties are explicitly supplied key/value settings such as "postgresql.testbase.port".
type Properties map[string]string

// Environment holds the process inputs a Location may consult.
type Environment struct {
	// LookupEnv looks up an environment variable. If nil, no variables are set.
	LookupEnv func(key string) (string, bool)

	// LookupProperty looks up a property. If nil, no properties are set.
	LookupProperty func(key string) (string, bool)

	// Username is the name of the user running the tests. It is the default user, password, and database name.
	Username string
}

// Getenv returns the environment variable key and whether it is set.
func (env Environment) Getenv(key string) (string, bool) {
	if env.LookupEnv == nil {
		return "", false
	}
	return env.LookupEnv(key)
}

// Property returns the property key and whether it is set.
func (env Environment) Property(key string) (string, bool) {
	if env.LookupProperty == nil {
		return "", false
	}
	return env.LookupProperty(key)
}

// ProcessEnvironment returns the Environment of the running process. Properties are taken first from props and then
// from the environment variable named by PropertyEnvName.
func ProcessEnvironment(props Properties) Environment {
	return Environment{
		LookupEnv: os.LookupEnv,
		LookupProperty: func(key string) (string, bool) {
			if value, ok := props[key]; ok {
				return value, true
			}
			return os.LookupEnv(PropertyEnvName(key))
		},
		Username: currentUsername(),
	}
}

// PropertyEnvName maps a property name to the environment variable that may also hold it. e.g.
// "postgresql.testbase.port" -> "POSTGRESQL_TESTBASE_PORT".
func PropertyEnvName(property string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, property)
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// Location is a way to find a database.
type Location interface {
	// Locate returns the descriptor of the database found in env. It returns nil, nil when this location does not
	// apply.
	Locate(env Environment) (*Descriptor, error)
}

// LocationFunc adapts a function to the Location interface.
type LocationFunc func(env Environment) (*Descriptor, error)

func (f LocationFunc) Locate(env Environment) (*Descriptor, error) {
	return f(env)
}

// Locate returns the descriptor of the first of locations that finds a database. If none do and useFallback is true
// then Fallback is used. Locations that fail with a *URLError are logged and skipped.
func Locate(ctx context.Context, env Environment, locations []Location, useFallback bool) (*Descriptor, error) {
	logger := zerolog.Ctx(ctx)

	for _, l := range locations {
		d, err := l.Locate(env)
		if err != nil {
			var urlErr *URLError
			if errors.As(err, &urlErr) {
				logger.Warn().Err(err).Str("env", urlErr.Name).Msg("cannot match database url: falling back")
				continue
			}
			return nil, err
		}
		if d != nil {
			logger.Debug().Str("host", d.Host).Int("port", d.Port).Str("database", d.Database).Msg("located database")
			return d, nil
		}
	}

	if useFallback {
		d, err := Fallback().Locate(env)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("host", d.Host).Int("port", d.Port).Str("database", d.Database).Msg("using fallback database")
		return d, nil
	}

	return nil, ErrDatabaseNotFound
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}
