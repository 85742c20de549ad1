package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/linkbio/internal/service"
)

// newPurgeCmd permanently deletes links soft-deleted longer than the
// recovery window. Meant to run from cron.
func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete links past their recovery window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.MigrateUp(); err != nil {
				return err
			}

			n, err := service.NewLinkService(db, nil, opts.logger).PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired link(s)\n", n)
			return nil
		},
	}
}
