// Command linkbioctl is the operator tool for a linkbio deployment:
// schema migrations, dev data, purging expired links and smoke tests.
//
// It reads the same environment (and .env) as the server; --db overrides
// DATABASE_URL.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/linkbio/internal/config"
	sqliteRepo "github.com/sakif/linkbio/internal/repository/sqlite"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	dbURL   string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "linkbioctl",
		Short: "linkbioctl - operate a linkbio deployment",
		Long: `linkbioctl runs schema migrations, seeds development data,
purges links past their recovery window and smoke-tests a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.dbURL != "" {
				cfg.Database.URL = opts.dbURL
			}
			opts.cfg = cfg

			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbURL, "db", "", "Database URL or path (defaults to DATABASE_URL)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newPurgeCmd(opts))
	cmd.AddCommand(newSmokeCmd(opts))
	return cmd
}

// openDB connects without migrating; commands that need the schema call
// MigrateUp themselves.
func (o *rootOptions) openDB() (*sqliteRepo.DB, error) {
	if o.cfg.Database.URL == "" {
		return nil, fmt.Errorf("no database: set DATABASE_URL or pass --db")
	}
	return sqliteRepo.Open(o.cfg.Database.URL)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
