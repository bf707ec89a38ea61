package cmd

import (
	"embed"
	"fmt"
	"net/url"
	"os"

	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/pop/v6/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// EmbeddedMigrations holds the SQL migrations compiled into the binary.
var EmbeddedMigrations embed.FS

var migrateCmd = cobra.Command{
	Use:  "migrate",
	Long: "Migrate database structures. This will create new tables and add missing columns and indexes.",
	Run:  migrate,
}

func migrate(cmd *cobra.Command, args []string) {
	globalConfig := loadGlobalConfig(cmd.Context())

	if globalConfig.DB.Driver == "" && globalConfig.DB.URL != "" {
		u, err := url.Parse(globalConfig.DB.URL)
		if err != nil {
			logrus.Fatalf("%+v", errors.Wrap(err, "parsing db connection url"))
		}
		globalConfig.DB.Driver = u.Scheme
	}

	log := logrus.StandardLogger()

	pop.Debug = false
	if log.Level == logrus.DebugLevel {
		// Set to true to display query info
		pop.Debug = true
	} else {
		var noopLogger = func(lvl logging.Level, s string, args ...interface{}) {
		}
		// Hide pop migration logging
		pop.SetLogger(noopLogger)
	}

	u, err := url.Parse(globalConfig.DB.URL)
	if err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "parsing db connection url"))
	}
	processedURL := globalConfig.DB.URL
	if len(u.Query()) != 0 {
		processedURL = fmt.Sprintf("%s&application_name=auth_migrations", processedURL)
	} else {
		processedURL = fmt.Sprintf("%s?application_name=auth_migrations", processedURL)
	}
	deets := &pop.ConnectionDetails{
		Dialect: globalConfig.DB.Driver,
		URL:     processedURL,
	}
	deets.Options = map[string]string{
		"migration_table_name": "schema_migrations",
	}

	db, err := pop.NewConnection(deets)
	if err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "opening db connection"))
	}
	defer db.Close()

	if err := db.Open(); err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "checking database connection"))
	}

	log.Debugf("Reading migrations from executable")
	box, err := pop.NewMigrationBox(EmbeddedMigrations, db)
	if err != nil {
		log.Fatalf("%+v", errors.Wrap(err, "creating db migrator"))
	}

	mig := box.Migrator

	if log.Level == logrus.DebugLevel {
		if err := mig.Status(os.Stdout); err != nil {
			log.Fatalf("%+v", errors.Wrap(err, "migration status"))
		}
	}

	// turn off schema dump
	mig.SchemaPath = ""

	count, err := mig.UpTo(0)
	if err != nil {
		log.Fatalf("%v", errors.Wrap(err, "running db migrations"))
	}
	log.WithField("count", count).Infof("auth migrations applied successfully")
}
