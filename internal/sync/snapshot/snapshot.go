package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/sync/store"
)

// DefaultTimeout bounds a load when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// Source is the bulk-read side of the backend.
type Source interface {
	GetProfile(ctx context.Context, id string) (classroom.User, error)
	ListProfiles(ctx context.Context) ([]classroom.User, error)
	ListUnits(ctx context.Context) ([]classroom.Unit, error)
	ListRoundProgress(ctx context.Context) ([]classroom.RoundProgress, error)
	ListUnitTests(ctx context.Context) ([]classroom.UnitTest, error)
	ListChatGroups(ctx context.Context, memberID string) ([]classroom.ChatGroup, error)
	ListChatMessages(ctx context.Context, groupIDs []string) ([]classroom.ChatMessage, error)
}

// Result is one consistent read of everything the signed-in user can see.
type Result struct {
	Me       classroom.User
	Snapshot store.Snapshot
}

type Loader struct {
	src     Source
	log     *logger.Logger
	timeout time.Duration
}

func NewLoader(src Source, log *logger.Logger, timeout time.Duration) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Loader{src: src, log: log.With("component", "SnapshotLoader"), timeout: timeout}
}

// Load checks the signed-in profile and then reads every collection in
// parallel. Any failure of the profile or a critical collection is fatal.
// Chat collections that fail come back empty and are listed in
// Snapshot.Degraded.
func (l *Loader) Load(ctx context.Context, userID string) (Result, error) {
	ctx, span := otel.Tracer("classsync/snapshot").Start(ctx, "snapshot.load")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	started := time.Now()
	me, err := l.src.GetProfile(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return Result{}, l.fatal(ctx, "snapshot.profile", err)
	}

	var (
		snap store.Snapshot
		mu   sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		units, err := l.src.ListUnits(gctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", classroom.CollectionUnits, err)
		}
		snap.Units = units
		return nil
	})
	g.Go(func() error {
		users, err := l.src.ListProfiles(gctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", classroom.CollectionProfiles, err)
		}
		snap.Users = users
		return nil
	})
	g.Go(func() error {
		progress, err := l.src.ListRoundProgress(gctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", classroom.CollectionRoundProgress, err)
		}
		snap.Progress = progress
		return nil
	})
	g.Go(func() error {
		tests, err := l.src.ListUnitTests(gctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", classroom.CollectionUnitTests, err)
		}
		snap.Tests = tests
		return nil
	})
	// Messages are scoped to the groups, so chat loads in one chain.
	g.Go(func() error {
		degrade := func(c classroom.Collection, err error) {
			l.log.Warn("Collection unavailable, continuing without it", "collection", c, "error", err)
			mu.Lock()
			snap.Degraded = append(snap.Degraded, c)
			mu.Unlock()
		}
		groups, err := l.src.ListChatGroups(gctx, userID)
		if err != nil {
			degrade(classroom.CollectionChatGroups, err)
			degrade(classroom.CollectionChatMessages, err)
			return nil
		}
		snap.ChatGroups = groups
		if len(groups) == 0 {
			return nil
		}
		ids := make([]string, len(groups))
		for i, grp := range groups {
			ids[i] = grp.ID
		}
		msgs, err := l.src.ListChatMessages(gctx, ids)
		if err != nil {
			degrade(classroom.CollectionChatMessages, err)
			return nil
		}
		snap.Messages = msgs
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Result{}, l.fatal(ctx, "snapshot.load", err)
	}

	l.log.Info("Snapshot loaded",
		"user_id", userID,
		"units", len(snap.Units),
		"users", len(snap.Users),
		"progress", len(snap.Progress),
		"tests", len(snap.Tests),
		"chat_groups", len(snap.ChatGroups),
		"messages", len(snap.Messages),
		"degraded", len(snap.Degraded),
		"elapsed", time.Since(started),
	)
	return Result{Me: me, Snapshot: snap}, nil
}

func (l *Loader) fatal(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.NewError(apperr.CodeFatal, op, fmt.Sprintf("timed out after %s", l.timeout), err)
	}
	return apperr.Wrap(apperr.CodeFatal, op, err)
}
