package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/animetinder/auth/internal/api"
	"github.com/animetinder/auth/internal/storage"
)

var cleanupCmd = cobra.Command{
	Use:  "cleanup",
	Long: "Remove expired pending authorizations and long dead refresh tokens once.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := loadGlobalConfig(ctx)

		db, err := storage.Dial(config)
		if err != nil {
			logrus.Fatalf("error opening database: %+v", err)
		}
		defer db.Close()

		st, closeStore, err := openStore(ctx, config, db)
		if err != nil {
			logrus.Fatalf("error opening store: %+v", err)
		}
		defer closeStore()

		affected, err := api.Sweep(ctx, st)
		if err != nil {
			logrus.Fatalf("cleanup failed: %+v", err)
		}
		logrus.WithField("affected_rows", affected).Info("cleanup finished")
	},
}
