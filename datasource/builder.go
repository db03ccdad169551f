package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgit/location"
)

var ErrFallbackAlreadySet = errors.New("fallback has already been set")

// Builder collects the locations to search for a database. The zero value is ready to use. Locations are tried in the
// order they are added.
type Builder struct {
	locations   []location.Location
	useFallback *bool
	err         error
}

// NewBuilder returns a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// FromProperty adds a database on localhost whose port is in the property portProperty.
func (b *Builder) FromProperty(database, portProperty string) *Builder {
	return b.FromLocation(location.FromProperty(database, portProperty))
}

// FromDatabaseProperty adds a database on localhost whose port is in the property "postgresql.<database>.port".
func (b *Builder) FromDatabaseProperty(database string) *Builder {
	return b.FromLocation(location.FromDatabaseProperty(database))
}

// FromEnvironment adds a database whose URL is in the environment variable name. The URL may have the scheme
// postgres, postgresql, or no scheme, a user and password, a host, an optional port (defaults to 5432), and a database.
func (b *Builder) FromEnvironment(name string) *Builder {
	return b.FromLocation(location.FromEnvironment(name))
}

// FromLocation adds l.
func (b *Builder) FromLocation(l location.Location) *Builder {
	b.locations = append(b.locations, l)
	return b
}

// WithFallback allows the use of the PG* environment variables and the user name when no location finds a database.
// This is the default.
func (b *Builder) WithFallback() *Builder {
	b.setFallback(true, "WithFallback")
	return b
}

// WithoutFallback disallows the fallback.
func (b *Builder) WithoutFallback() *Builder {
	b.setFallback(false, "WithoutFallback")
	return b
}

func (b *Builder) setFallback(value bool, name string) {
	if b.useFallback != nil {
		if b.err == nil {
			b.err = fmt.Errorf("cannot set %s to %t: %w to %t", name, value, ErrFallbackAlreadySet, *b.useFallback)
		}
		return
	}
	b.useFallback = &value
}

// Build locates the database and creates the DataSource. It returns any error recorded while configuring b.
func (b *Builder) Build(ctx context.Context, opts ...Option) (*DataSource, error) {
	if b.err != nil {
		return nil, b.err
	}

	useFallback := true
	if b.useFallback != nil {
		useFallback = *b.useFallback
	}

	return New(ctx, b.locations, useFallback, opts...)
}
