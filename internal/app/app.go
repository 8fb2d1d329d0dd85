package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/classsync/internal/data/backend"
	apphttp "github.com/yungbote/classsync/internal/http"
	httpH "github.com/yungbote/classsync/internal/http/handlers"
	"github.com/yungbote/classsync/internal/observability"
	"github.com/yungbote/classsync/internal/platform/gcp"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/realtime/feed"
	"github.com/yungbote/classsync/internal/realtime/sse"
	"github.com/yungbote/classsync/internal/session"
	"github.com/yungbote/classsync/internal/sync/command"
	"github.com/yungbote/classsync/internal/sync/listener"
	"github.com/yungbote/classsync/internal/sync/snapshot"
	"github.com/yungbote/classsync/internal/sync/store"
)

const serviceName = "classsync"

// Version is stamped at build time.
var Version = "dev"

type App struct {
	Log     *logger.Logger
	Cfg     Config
	DB      *gorm.DB
	Backend *backend.Backend
	Metrics *observability.Metrics
	Session session.Session

	Store    *store.Store
	Listener *listener.Listener
	Commands *command.Service
	Hub      *sse.Hub
	Server   *apphttp.Server

	redis        *goredis.Client
	blobs        *gcp.Storage
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	a := &App{Log: log, Cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	log, cfg := a.Log, a.Cfg

	sess, err := session.NewParser(cfg.JWTSecret, 0).Parse(cfg.AccessToken)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	a.Session = sess
	log = log.With("user_id", sess.UserID)
	a.Log = log

	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: serviceName,
		Version:     Version,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    true,
		SampleRatio: cfg.OtelSampleRatio,
	})
	a.Metrics = observability.NewMetrics()

	db, err := backend.OpenPostgres(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.DB = db
	if cfg.AutoMigrate {
		log.Info("Running backend auto-migration...")
		if err := backend.AutoMigrate(db); err != nil {
			return err
		}
		if err := backend.InstallChangeFeed(db, cfg.FeedChannel); err != nil {
			return err
		}
	}
	a.Backend = backend.New(db, log)

	if cfg.Storage != nil {
		blobs, err := gcp.NewStorage(ctx, log, *cfg.Storage)
		if err != nil {
			return fmt.Errorf("init object storage: %w", err)
		}
		a.blobs = blobs
	}

	sources, pub, err := a.wireFeed(ctx)
	if err != nil {
		return err
	}

	a.Store = store.New(log, store.WithObserver(a.Metrics))
	loader := snapshot.NewLoader(a.Backend, log, cfg.SnapshotTimeout)
	a.Listener = listener.New(listener.Config{
		UserID:            sess.UserID,
		BufferSize:        cfg.ListenerBuffer,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectMaxDelay: cfg.ReconnectMaxDelay,
	}, a.Store, loader, a.Backend, sources, log, a.Metrics)

	opts := command.Options{
		Publisher:    pub,
		Metrics:      a.Metrics,
		TestDuration: cfg.TestDuration,
	}
	if a.blobs != nil {
		opts.Blobs = a.blobs
	}
	a.Commands = command.New(a.Store, a.Backend, log, opts)
	a.Commands.SetActor(sess.UserID)

	a.Hub = sse.NewHub(log)
	a.Server = apphttp.NewServer(log, apphttp.RouterConfig{
		Log:             log,
		Metrics:         a.Metrics,
		ServiceName:     serviceName,
		Origins:         cfg.CORSOrigins,
		HealthHandler:   httpH.NewHealthHandler(),
		StateHandler:    httpH.NewStateHandler(a.Store, a.Commands.Actor, cfg.TestDuration),
		CommandHandler:  httpH.NewCommandHandler(a.Commands),
		RealtimeHandler: httpH.NewRealtimeHandler(log, a.Hub),
	})
	return nil
}

// wireFeed builds the change-feed sources and the broadcast publisher for
// the configured transport.
func (a *App) wireFeed(ctx context.Context) ([]feed.Source, feed.Publisher, error) {
	log, cfg := a.Log, a.Cfg
	switch cfg.FeedMode {
	case FeedWebsocket:
		gw, err := feed.NewGateway(cfg.FeedWSURL, a.Session.Token, feed.DefaultGatewaySettings(), log)
		if err != nil {
			return nil, nil, fmt.Errorf("init gateway feed: %w", err)
		}
		return []feed.Source{gw}, gw, nil
	default:
		rows, err := feed.NewPGNotify(cfg.PostgresDSN, cfg.FeedChannel, log)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres feed: %w", err)
		}
		rdb, err := feed.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		a.redis = rdb
		presence, err := feed.NewRedisPresence(rdb, a.Session.UserID, cfg.PresenceTTL, log)
		if err != nil {
			return nil, nil, err
		}
		bc, err := feed.NewRedisBroadcast(rdb, cfg.BroadcastChannel, log)
		if err != nil {
			return nil, nil, err
		}
		return []feed.Source{rows, presence, bc}, bc, nil
	}
}

// Run blocks until ctx ends or a component fails. A failed first snapshot
// load ends the session.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Listener == nil {
		return fmt.Errorf("app not initialized")
	}
	g, ctx := errgroup.WithContext(ctx)

	stopBridge := a.Hub.Bridge(a.Store)
	defer stopBridge()

	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	if a.redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.redis)
	}

	g.Go(func() error {
		err := a.Listener.Run(ctx)
		if err != nil {
			return fmt.Errorf("change feed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case me := <-a.Listener.SignedIn():
			a.Commands.SetActor(me.ID)
			a.Log.Info("Signed in", "name", me.Name, "role", me.Role)
		}
		return nil
	})
	g.Go(func() error {
		runExpiry(ctx, a.Store, a.Commands, a.Cfg.ExpiryInterval, a.Log)
		return nil
	})
	g.Go(func() error {
		return a.Server.Run(ctx, a.Cfg.HTTPAddr, a.Cfg.ShutdownGrace)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.blobs != nil {
		_ = a.blobs.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
