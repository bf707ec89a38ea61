package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/animetinder/auth/internal/store"
)

var (
	cleanupWaitGroup sync.WaitGroup
)

// WaitForCleanup waits until all API servers are shut down cleanly or until
// the provided context signals done, whichever comes first.
func WaitForCleanup(ctx context.Context) {
	cleanupDone := make(chan struct{})

	go func() {
		defer close(cleanupDone)

		cleanupWaitGroup.Wait()
	}()

	select {
	case <-ctx.Done():
		return

	case <-cleanupDone:
		return
	}
}

// Sweep removes stale pending authorizations and long dead refresh tokens
// once.
func Sweep(ctx context.Context, st store.Store) (int, error) {
	log := logrus.WithField("component", "cleanup")

	affectedRows, err := st.Cleanup(ctx)
	if err != nil {
		log.WithError(err).WithField("affected_rows", affectedRows).Warn("database cleanup failed")
	} else if affectedRows > 0 {
		log.WithField("affected_rows", affectedRows).Debug("cleaned up expired or stale rows")
	}
	return affectedRows, err
}

// RunCleanup sweeps every interval until ctx is done. A failed sweep is
// logged and retried on the next tick.
func RunCleanup(ctx context.Context, st store.Store, interval time.Duration) error {
	cleanupWaitGroup.Add(1)
	defer cleanupWaitGroup.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			Sweep(ctx, st)
		}
	}
}
