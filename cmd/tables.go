package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgit/datasource"
	"github.com/jackc/pgit/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables in foreign key order",
	Long:  "List the tables of the schema, one per line, ordered so that tables come after the tables they reference.",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDataSource(cmd, func(ctx context.Context, ds *datasource.DataSource) error {
			tables, err := ds.AllTableNames(ctx)
			if err != nil {
				return err
			}

			for _, table := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), table)
			}

			return nil
		})
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the located database URL",
	Long: `Print the URL of the database the other commands would use. The password is redacted unless --show-password is
given. With --check, also connect and print the server version, database name, and server time.`,
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		showPassword, _ := cmd.Flags().GetBool("show-password")
		check, _ := cmd.Flags().GetBool("check")

		return withDataSource(cmd, func(ctx context.Context, ds *datasource.DataSource) error {
			d := ds.Descriptor()
			if showPassword {
				fmt.Fprintln(cmd.OutOrStdout(), d.ConnString())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), d.Redacted())
			}
			if !check {
				return nil
			}

			var info *db.ServerInfo
			err := ds.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
				var err error
				info, err = db.GetServerInfo(ctx, conn.Conn())
				return err
			})
			if err != nil {
				return fmt.Errorf("check %s: %w", d.Redacted(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "server version: %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "database: %s\n", info.Database)
			fmt.Fprintf(cmd.OutOrStdout(), "server time: %s\n", info.CurrentTime.Format(time.RFC3339))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)

	locateCmd.Flags().Bool("show-password", false, "Print the password")
	locateCmd.Flags().Bool("check", false, "Connect and print server information")
	rootCmd.AddCommand(locateCmd)
}
