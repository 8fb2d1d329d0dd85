package app

import (
	"context"
	"time"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/sync/store"
)

type expirer interface {
	ExpireTestIfDue(ctx context.Context, testID string) (bool, error)
}

// runExpiry ends running tests whose countdown has reached zero. Every
// client runs it; the status guard on the backend lets only one write win.
func runExpiry(ctx context.Context, st *store.Store, ex expirer, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sweepExpired(ctx, st, ex, log)
		}
	}
}

func sweepExpired(ctx context.Context, st *store.Store, ex expirer, log *logger.Logger) int {
	ended := 0
	for _, t := range st.State().SortedTests() {
		if t.Status != classroom.TestInProgress {
			continue
		}
		moved, err := ex.ExpireTestIfDue(ctx, t.ID)
		if err != nil {
			log.Warn("Test expiry failed", "test_id", t.ID, "error", err)
			continue
		}
		if moved {
			log.Info("Test time is up", "test_id", t.ID)
			ended++
		}
	}
	return ended
}
