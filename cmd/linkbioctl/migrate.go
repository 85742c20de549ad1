package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
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
			return printVersion(cmd, opts, db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}

			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.MigrateDown(steps); err != nil {
				return err
			}
			return printVersion(cmd, opts, db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, opts, db)
		},
	})

	return cmd
}

type versioner interface {
	MigrationVersion() (uint, bool, error)
}

func printVersion(cmd *cobra.Command, opts *rootOptions, db versioner) error {
	version, dirty, err := db.MigrationVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	opts.logger.Debug("migration state", "db", opts.cfg.Database.URL, "version", version, "dirty", dirty)
	return nil
}
