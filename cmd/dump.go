package cmd

import (
	"context"

	"github.com/jackc/pgit/datasource"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [table...]",
	Short: "Copy table content to the dump folder",
	Long:  "Copy the content of the listed tables, or every table of the schema when none are listed, to <dump folder>/<table>.dat.",

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDataSource(cmd, func(ctx context.Context, ds *datasource.DataSource) error {
			var err error
			if len(args) == 0 {
				err = ds.CopyAllTablesToDisk(ctx)
			} else {
				err = ds.CopyTablesToDisk(ctx, args...)
			}
			if err != nil {
				return err
			}

			folder, _ := ds.DumpFolder()
			zerolog.Ctx(ctx).Info().Str("folder", folder).Msg("dumped tables")
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [table...]",
	Short: "Load table content from the dump folder",
	Long: `Load the listed tables, or every table of the schema in foreign key order when none are listed, from
<dump folder>/<table>.dat. Listed tables must be given in foreign key order. Tables should be empty (see truncate).`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withDataSource(cmd, func(ctx context.Context, ds *datasource.DataSource) error {
			var err error
			if len(args) == 0 {
				err = ds.CopyAllTablesFromDisk(ctx)
			} else {
				err = ds.CopyTablesFromDisk(ctx, args...)
			}
			if err != nil {
				return err
			}

			folder, _ := ds.DumpFolder()
			zerolog.Ctx(ctx).Info().Str("folder", folder).Msg("restored tables")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(restoreCmd)
}
