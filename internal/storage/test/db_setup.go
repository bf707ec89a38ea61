package test

import (
	"github.com/gobuffalo/pop/v6"
	"github.com/pkg/errors"

	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/storage"
)

// SetupDBConnection dials the configured database and brings its schema up
// to date with the migrations on disk.
func SetupDBConnection(globalConfig *conf.GlobalConfiguration) (*storage.Connection, error) {
	conn, err := storage.Dial(globalConfig)
	if err != nil {
		return nil, err
	}

	mig, err := pop.NewFileMigrator(globalConfig.DB.MigrationsPath, conn.Connection)
	if err != nil {
		return nil, errors.Wrap(err, "creating db migrator")
	}
	if err := mig.Up(); err != nil {
		return nil, errors.Wrap(err, "running db migrations")
	}

	return conn, nil
}
