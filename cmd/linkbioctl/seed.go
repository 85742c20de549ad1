package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/sakif/linkbio/internal/auth"
	sqliteRepo "github.com/sakif/linkbio/internal/repository/sqlite"
	"github.com/sakif/linkbio/internal/seed"
	"github.com/sakif/linkbio/internal/service"
	"github.com/sakif/linkbio/internal/storage"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var seedOpts seed.Options

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with fake accounts, links and traffic",
		Long: `seed creates accounts with links, social icons and page traffic.
Every account uses the password "` + seed.Password + `".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.Tracking.IPHashSalt == "" {
				return errors.New("IP_HASH_SALT is required so seeded views dedup like real ones")
			}

			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.MigrateUp(); err != nil {
				return err
			}

			svc, err := seedServices(opts, db)
			if err != nil {
				return err
			}

			res, err := seed.NewSeeder(svc, seedOpts.Seed, opts.logger).Run(cmd.Context(), seedOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "seeded %d user(s), %d link(s), %d icon(s), %d view(s), %d click(s)\n",
				len(res.Handles), res.Links, res.Icons, res.Views, res.Clicks)
			fmt.Fprintf(out, "handles: %s\n", strings.Join(res.Handles, ", "))
			return nil
		},
	}

	cmd.Flags().IntVar(&seedOpts.Users, "users", 5, "Number of accounts to create")
	cmd.Flags().IntVar(&seedOpts.LinksPerUser, "links", 4, "Links per account")
	cmd.Flags().IntVar(&seedOpts.Visits, "visits", 20, "Page visits per account")
	cmd.Flags().Uint64Var(&seedOpts.Seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

// seedServices wires the services the seeder writes through. Tokens
// issued during signup are thrown away, so a throwaway secret is fine when
// JWT_SECRET is unset.
func seedServices(opts *rootOptions, db *sqliteRepo.DB) (seed.Services, error) {
	secret := opts.cfg.Auth.JWTSecret
	if secret == "" {
		secret = xid.New().String() + xid.New().String()
	}
	tokens, err := auth.NewTokenService(secret, opts.cfg.Auth.TokenTTL)
	if err != nil {
		return seed.Services{}, err
	}

	logger := opts.logger
	return seed.Services{
		Auth:     service.NewAuthService(db, tokens, auth.NewPasswordService(), logger),
		Links:    service.NewLinkService(db, nil, logger),
		Social:   service.NewSocialService(db),
		Profiles: service.NewProfileService(db, storage.DataURLStore{}, opts.cfg.Storage.MaxAvatarBytes, logger),
		Public: service.NewPublicService(service.PublicDeps{
			Users:       db,
			Links:       db,
			Icons:       db,
			Events:      db,
			Salt:        opts.cfg.Tracking.IPHashSalt,
			DedupWindow: opts.cfg.Tracking.DedupWindow,
			Logger:      logger,
		}),
	}, nil
}
