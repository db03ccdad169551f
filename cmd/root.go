package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jackc/envconf"
	"github.com/spf13/cobra"
)

var rootEnvconf = envconf.New()

var shutdownSignals = []os.Signal{os.Interrupt}

var rootCmd = &cobra.Command{
	Use:   "pgit",
	Short: "Prepare PostgreSQL databases for integration tests",

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logFormat, _ := cmd.Flags().GetString("log-format")
		logLevel, _ := cmd.Flags().GetString("log-level")
		setupLogger(logFormat, logLevel)
	},
}

// Execute runs the root command. The context is canceled when a shutdown signal is received. A second signal
// terminates the program.
func Execute() error {
	ctx, stop := shutdownContext(context.Background())
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

// shutdownContext returns a context canceled by the first shutdown signal. Signal handling is restored once the
// context is done, so a second signal gets the default behavior.
func shutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, shutdownSignals...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	return ctx, stop
}

func init() {
	rootEnvconf.Register(envconf.Item{Name: "PGIT_DUMP_FOLDER", Default: "", Description: "Folder for table dumps. Defaults to the postgresql.dump.folder property or $TMPDIR/pg_dumps"})
	rootEnvconf.Register(envconf.Item{Name: "PGIT_LOG_FORMAT", Default: "console", Description: "Log format (json or console)"})
	rootEnvconf.Register(envconf.Item{Name: "PGIT_LOG_LEVEL", Default: "info", Description: "Log level (trace, debug, info, warn, error)"})

	long := &strings.Builder{}
	long.WriteString("Locate a PostgreSQL test database and reset or snapshot its tables.\n\n")
	long.WriteString("The database is the first found of the --database port property, the --env URL variable, and, unless\n")
	long.WriteString("--no-fallback is given, the PG* environment variables.\n\n")
	long.WriteString("Configure with the following environment variables:\n\n")
	for _, item := range rootEnvconf.Items() {
		long.WriteString(fmt.Sprintf("  %s\n    Default: %s\n    %s\n\n", item.Name, item.Default, item.Description))
	}
	rootCmd.Long = long.String()

	flags := rootCmd.PersistentFlags()
	flags.String("database", "", "Name of the database to find on localhost using a port property")
	flags.String("port-property", "", "Property holding the port of --database (default postgresql.<database>.port)")
	flags.StringSlice("env", nil, "Environment variable holding a database URL (may be repeated)")
	flags.Bool("no-fallback", false, "Do not fall back to the PG* environment variables")
	flags.StringToStringP("define", "D", nil, "Set a property (e.g. -D postgresql.testbase.port=15432)")
	flags.String("schema", "public", "Schema to operate on")
	flags.String("copy-mode", "server", "Where dump files are read and written (server or client)")
	flags.String("log-format", rootEnvconf.Value("PGIT_LOG_FORMAT"), "Log format (json or console)")
	flags.String("log-level", rootEnvconf.Value("PGIT_LOG_LEVEL"), "Log level")
}
