package models

import (
	"fmt"
	"sync/atomic"

	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/observability"
	"github.com/animetinder/auth/internal/storage"
)

type Cleanup struct {
	cleanupStatements []string

	// cleanupNext holds an atomically incrementing value that determines which of
	// the cleanupStatements will be run next.
	cleanupNext uint32
}

func NewCleanup(config *conf.GlobalConfiguration) *Cleanup {
	tablePending := PendingAuthorization{}.TableName()
	tableRefreshTokens := RefreshToken{}.TableName()

	flowSeconds := int(config.Sessions.FlowStateTTL.Seconds()) * PendingAuthorizationRetentionFactor
	retentionSeconds := int(config.Sessions.RefreshTokenRetention.Seconds())

	c := &Cleanup{}

	// These statements intentionally use SELECT ... FOR UPDATE SKIP LOCKED
	// as this makes sure that only rows that are not being used in another
	// transaction are deleted.
	c.cleanupStatements = append(c.cleanupStatements,
		fmt.Sprintf("delete from %q where id in (select id from %q where created_at < now() - interval '%d seconds' limit 100 for update skip locked);", tablePending, tablePending, flowSeconds),
		fmt.Sprintf("delete from %q where id in (select id from %q where revoked is true and updated_at < now() - interval '%d seconds' limit 100 for update skip locked);", tableRefreshTokens, tableRefreshTokens, retentionSeconds),
		fmt.Sprintf("delete from %q where id in (select id from %q where expires_at < now() - interval '%d seconds' limit 100 for update skip locked);", tableRefreshTokens, tableRefreshTokens, retentionSeconds),
	)

	return c
}

// Clean removes a small batch of stale rows. Each call runs the next
// statement in turn, so repeated calls sweep every table.
func (c *Cleanup) Clean(db *storage.Connection) (int, error) {
	affectedRows := 0
	if err := db.Transaction(func(tx *storage.Connection) error {
		nextIndex := atomic.AddUint32(&c.cleanupNext, 1) % uint32(len(c.cleanupStatements))
		statement := c.cleanupStatements[nextIndex]

		count, terr := tx.RawQuery(statement).ExecWithCount()
		if terr != nil {
			return terr
		}

		affectedRows += count

		return nil
	}); err != nil {
		return affectedRows, err
	}

	observability.CleanupAffectedRows.Add(float64(affectedRows))

	return affectedRows, nil
}

// Statements exposes the cleanup statements, for tests.
func (c *Cleanup) Statements() []string {
	return c.cleanupStatements
}
