package cmd

import (
	"context"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/animetinder/auth/internal/api"
	"github.com/animetinder/auth/internal/api/provider"
	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/storage"
	"github.com/animetinder/auth/internal/store"
	"github.com/animetinder/auth/internal/utilities"
)

var serveCmd = cobra.Command{
	Use:  "serve",
	Long: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		serve(cmd.Context())
	},
}

func serve(ctx context.Context) {
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

	mal, err := provider.NewMyAnimeListProvider(config.External.MyAnimeList)
	if err != nil {
		logrus.Fatalf("error configuring MyAnimeList provider: %+v", err)
	}

	a := api.NewAPIWithVersion(ctx, config, st, mal, utilities.Version)

	addr := net.JoinHostPort(config.API.Host, config.API.Port)
	logrus.Infof("auth API started on: %s", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.ListenAndServe(gctx, addr)
	})

	if config.DB.CleanupEnabled {
		g.Go(func() error {
			return api.RunCleanup(gctx, st, config.DB.CleanupInterval)
		})
	}

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("http server listen failed")
	}
}

// openStore builds the SQL store, with pending authorizations moved to redis
// when a redis url is configured.
func openStore(ctx context.Context, config *conf.GlobalConfiguration, db *storage.Connection) (store.Store, func(), error) {
	var st store.Store = store.NewSQLStore(db, models.NewCleanup(config))
	if !config.Redis.Enabled() {
		return st, func() {}, nil
	}

	pending, err := store.NewRedisPendingAuthorizationStore(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	logrus.Info("pending authorizations are kept in redis")

	return store.WithPendingAuthorizations(st, pending), func() { utilities.SafeClose(pending) }, nil
}
