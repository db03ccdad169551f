package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/jackc/pgit/datasource"
	"github.com/jackc/pgit/location"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func setupLogger(logFormat, logLevel string) {
	var logWriter io.Writer
	if logFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(logWriter).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
}

// builderFromFlags returns a Builder and options configured from the persistent flags.
func builderFromFlags(cmd *cobra.Command) (*datasource.Builder, []datasource.Option, error) {
	flags := cmd.Flags()
	database, _ := flags.GetString("database")
	portProperty, _ := flags.GetString("port-property")
	envNames, _ := flags.GetStringSlice("env")
	noFallback, _ := flags.GetBool("no-fallback")
	properties, _ := flags.GetStringToString("define")
	schema, _ := flags.GetString("schema")
	copyModeName, _ := flags.GetString("copy-mode")

	copyMode, err := datasource.ParseCopyMode(copyModeName)
	if err != nil {
		return nil, nil, err
	}

	b := datasource.NewBuilder()
	if database != "" {
		if portProperty == "" {
			b.FromDatabaseProperty(database)
		} else {
			b.FromProperty(database, portProperty)
		}
	} else if portProperty != "" {
		return nil, nil, errors.New("--port-property requires --database")
	}
	for _, name := range envNames {
		b.FromEnvironment(name)
	}
	if noFallback {
		b.WithoutFallback()
	}

	opts := []datasource.Option{
		datasource.WithEnvironment(location.ProcessEnvironment(properties)),
		datasource.WithSchema(schema),
		datasource.WithCopyMode(copyMode),
		// Only connections handed to test code need statement logging.
		datasource.WithConnSetup(),
	}
	if dumpFolder := rootEnvconf.Value("PGIT_DUMP_FOLDER"); dumpFolder != "" {
		opts = append(opts, datasource.WithDumpFolder(dumpFolder))
	}

	return b, opts, nil
}

// setupDataSource builds the DataSource described by the persistent flags.
func setupDataSource(ctx context.Context, cmd *cobra.Command) (*datasource.DataSource, error) {
	b, opts, err := builderFromFlags(cmd)
	if err != nil {
		return nil, err
	}

	ds, err := b.Build(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return ds, nil
}

// withDataSource runs fn with a DataSource configured from the flags and closes it afterwards.
func withDataSource(cmd *cobra.Command, fn func(ctx context.Context, ds *datasource.DataSource) error) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ds, err := setupDataSource(ctx, cmd)
	if err != nil {
		return err
	}
	defer ds.Close()

	return fn(ctx, ds)
}
