package models

import (
	"github.com/gobuffalo/pop/v6"

	"github.com/animetinder/auth/internal/storage"
)

// TruncateAll deletes all data from the database managed by this service.
// Not intended for use outside of tests.
func TruncateAll(conn *storage.Connection) error {
	return conn.Transaction(func(tx *storage.Connection) error {
		tables := []string{
			(&pop.Model{Value: RefreshToken{}}).TableName(),
			(&pop.Model{Value: PendingAuthorization{}}).TableName(),
			(&pop.Model{Value: User{}}).TableName(),
		}

		for _, tableName := range tables {
			if err := tx.RawQuery("DELETE FROM " + tableName).Exec(); err != nil {
				return err
			}
		}

		return nil
	})
}
