package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animetinder/auth/internal/conf"
	"github.com/animetinder/auth/internal/models"
	"github.com/animetinder/auth/internal/storage"
	"github.com/animetinder/auth/internal/storage/test"
)

const storeTestConfig = "../../hack/test.env"

// The SQL tests need a reachable postgres and run only when AUTH_DB_TESTS
// is set to true.
func setupSQLStore(t *testing.T) (*storage.Connection, *conf.GlobalConfiguration) {
	t.Helper()
	if os.Getenv("AUTH_DB_TESTS") != "true" {
		t.Skip("AUTH_DB_TESTS is not set")
	}

	config, err := conf.LoadGlobal(storeTestConfig)
	require.NoError(t, err)
	conn, err := test.SetupDBConnection(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, config
}

func TestSQLStore(t *testing.T) {
	conn, config := setupSQLStore(t)
	cleanup := models.NewCleanup(config)

	testStoreBehaviour(t, func(t *testing.T) Store {
		require.NoError(t, models.TruncateAll(conn))
		return NewSQLStore(conn, cleanup)
	})
}

func TestSQLCleanupStatements(t *testing.T) {
	conn, config := setupSQLStore(t)
	cleanup := models.NewCleanup(config)
	s := NewSQLStore(conn, cleanup)

	for _, statement := range cleanup.Statements() {
		_, err := conn.RawQuery(statement).ExecWithCount()
		require.NoError(t, err, statement)
	}

	for range cleanup.Statements() {
		_, err := s.Cleanup(context.Background())
		require.NoError(t, err)
	}
}
