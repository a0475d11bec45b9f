package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/piwi3910/cvmsync/pkg/config"
	"github.com/piwi3910/cvmsync/pkg/stores"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations and exit",
		Long: `Create or upgrade the local SQLite cache schema without starting the
control endpoint. The serve command also migrates on each preload; this
is for provisioning the file ahead of time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			store, err := stores.NewInventoryStore(stores.Config{Path: cfg.Store.Path})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}

			log.Info().Str("path", cfg.Store.Path).Msg("Store migrated")
			return nil
		},
	}

	return cmd
}
