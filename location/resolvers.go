package location

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// FromProperty returns a Location for database on localhost with the port read from the property portProperty. The
// user name is used as both user and password. It does not apply when the property is not set.
func FromProperty(database, portProperty string) Location {
	return LocationFunc(func(env Environment) (*Descriptor, error) {
		value, ok := env.Property(portProperty)
		if !ok {
			return nil, nil
		}

		port, err := parsePort(value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", portProperty, err)
		}

		return &Descriptor{
			Host:     "localhost",
			Port:     port,
			Database: database,
			User:     env.Username,
			Password: env.Username,
		}, nil
	})
}

// FromDatabaseProperty is FromProperty with the conventional port property "postgresql.<database>.port".
func FromDatabaseProperty(database string) Location {
	return FromProperty(database, PortProperty(database))
}

// PortProperty returns the conventional port property name for database.
func PortProperty(database string) string {
	return "postgresql." + database + ".port"
}

var ErrUnparsableURL = errors.New("unparsable database url")

// URLError is returned when an environment variable holds a value that is not a database URL.
type URLError struct {
	Name  string
	Value string
}

func (e *URLError) Error() string {
	return fmt.Sprintf("environment variable %s: %v: %q", e.Name, ErrUnparsableURL, e.Value)
}

func (e *URLError) Unwrap() error {
	return ErrUnparsableURL
}

var postgresURLRegexp = regexp.MustCompile(`\A(?:postgres(?:ql)?://)?(?:([^:@/]+)(?::([^@/]*))?@)?([^:/@]+)(?::([1-9][0-9]*))?/([^?]+)(?:\?(.*))?\z`)

// ParseURL parses a database URL of the form [postgres[ql]://][user[:password]@]host[:port]/database[?params]. The
// port defaults to DefaultPort. Query parameters such as sslmode are kept in Params. ok is false if s does not match.
func ParseURL(s string) (d *Descriptor, ok bool) {
	m := postgresURLRegexp.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}

	port := DefaultPort
	if m[4] != "" {
		var err error
		port, err = parsePort(m[4])
		if err != nil {
			return nil, false
		}
	}

	var params url.Values
	if m[6] != "" {
		var err error
		params, err = url.ParseQuery(m[6])
		if err != nil {
			return nil, false
		}
	}

	return &Descriptor{
		User:     m[1],
		Password: m[2],
		Host:     m[3],
		Port:     port,
		Database: m[5],
		Params:   params,
	}, true
}

// FromEnvironment returns a Location that reads a database URL from the environment variable name. See ParseURL for
// the accepted format. It does not apply when the variable is not set.
func FromEnvironment(name string) Location {
	return LocationFunc(func(env Environment) (*Descriptor, error) {
		value, ok := env.Getenv(name)
		if !ok {
			return nil, nil
		}

		d, ok := ParseURL(value)
		if !ok {
			return nil, &URLError{Name: name, Value: value}
		}

		return d, nil
	})
}

// Fallback returns the Location used when no other location finds a database. It always applies.
//
//   - user is $PGUSER or the user name
//   - password is $PGPASSWORD or the user name
//   - host is $PGHOST or localhost
//   - port is $PGPORT or 5432
//   - database is $PGDATABASE or the user name
func Fallback() Location {
	return LocationFunc(func(env Environment) (*Descriptor, error) {
		getenv := func(key, defaultValue string) string {
			if value, ok := env.Getenv(key); ok {
				return value
			}
			return defaultValue
		}

		port, err := parsePort(getenv("PGPORT", strconv.Itoa(DefaultPort)))
		if err != nil {
			return nil, fmt.Errorf("PGPORT: %w", err)
		}

		return &Descriptor{
			Host:     getenv("PGHOST", "localhost"),
			Port:     port,
			Database: getenv("PGDATABASE", env.Username),
			User:     getenv("PGUSER", env.Username),
			Password: getenv("PGPASSWORD", env.Username),
		}, nil
	})
}
