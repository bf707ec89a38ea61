package storage

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/gobuffalo/pop/v6"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/animetinder/auth/internal/conf"
)

// Connection is the interface a storage provider must implement.
type Connection struct {
	*pop.Connection
}

// Dial will connect to that storage engine
func Dial(config *conf.GlobalConfiguration) (*Connection, error) {
	if config.DB.Driver == "" && config.DB.URL != "" {
		u, err := url.Parse(config.DB.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing db connection url")
		}
		config.DB.Driver = u.Scheme
	}

	driver := ""
	if config.DB.Driver != "postgres" {
		logrus.Warnf("database dialect %q is untested, postgres is recommended", config.DB.Driver)
	} else {
		// pop v5 uses pgx as the default PostgreSQL driver
		driver = "pgx"
	}

	options := make(map[string]string)
	if config.DB.ConnMaxIdleTime != 0 {
		options["pool_max_conn_idle_time"] = config.DB.ConnMaxIdleTime.String()
	}

	db, err := pop.NewConnection(&pop.ConnectionDetails{
		Dialect:         config.DB.Driver,
		Driver:          driver,
		URL:             config.DB.URL,
		Pool:            config.DB.MaxPoolSize,
		IdlePool:        config.DB.MaxIdlePoolSize,
		ConnMaxLifetime: config.DB.ConnMaxLifetime,
		ConnMaxIdleTime: config.DB.ConnMaxIdleTime,
		Options:         options,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	if err := db.Open(); err != nil {
		return nil, errors.Wrap(err, "checking database connection")
	}

	return &Connection{db}, nil
}

// Transaction runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (c *Connection) Transaction(fn func(*Connection) error) error {
	if c.TX == nil {
		if terr := c.Connection.Transaction(func(tx *pop.Connection) error {
			return fn(&Connection{tx})
		}); terr != nil {
			// there exists a race condition when the context deadline is exceeded
			// and whether the transaction has been committed or not
			// e.g. if the context deadline has exceeded but the transaction has already been committed,
			// it won't be possible to perform a rollback on the transaction since the transaction has been closed
			if !errors.Is(terr, sql.ErrTxDone) {
				return terr
			}
		}
		return nil
	}
	return fn(c)
}

// WithContext returns a new connection bound to ctx, so that queries are
// cancelled with the request.
func (c *Connection) WithContext(ctx context.Context) *Connection {
	return &Connection{c.Connection.WithContext(ctx)}
}
