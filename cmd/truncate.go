package cmd

import (
	"context"
	"errors"

	"github.com/jackc/pgit/datasource"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var truncateCmd = &cobra.Command{
	Use:   "truncate [table...]",
	Short: "Truncate tables",
	Long:  "Truncate the listed tables with CASCADE in a single transaction, or every table of the schema with --all.",

	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) > 0) {
			return errors.New("give either table names or --all")
		}

		return withDataSource(cmd, func(ctx context.Context, ds *datasource.DataSource) error {
			var err error
			if all {
				err = ds.TruncateAllTables(ctx)
			} else {
				err = ds.TruncateTables(ctx, args...)
			}
			if err != nil {
				return err
			}

			zerolog.Ctx(ctx).Info().Strs("tables", args).Bool("all", all).Msg("truncated tables")
			return nil
		})
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Drop and recreate the schema",
	Long:  "Drop the schema with everything in it and create it again empty. Requires --yes.",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return errors.New("wipe drops all data in the schema: pass --yes to confirm")
		}

		return withDataSource(cmd, func(ctx context.Context, ds *datasource.DataSource) error {
			err := ds.Wipe(ctx)
			if err != nil {
				return err
			}

			zerolog.Ctx(ctx).Info().Str("schema", ds.Schema()).Msg("wiped schema")
			return nil
		})
	},
}

func init() {
	truncateCmd.Flags().Bool("all", false, "Truncate every table in the schema")
	rootCmd.AddCommand(truncateCmd)

	wipeCmd.Flags().Bool("yes", false, "Confirm dropping the schema")
	rootCmd.AddCommand(wipeCmd)
}
