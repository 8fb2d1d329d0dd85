package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/classsync/internal/data/backend"
	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/platform/envutil"
	"github.com/yungbote/classsync/internal/platform/gcp"
	"github.com/yungbote/classsync/internal/platform/logger"
)

const (
	FeedPostgres  = "postgres"
	FeedWebsocket = "websocket"
)

type Config struct {
	HTTPAddr      string
	ShutdownGrace time.Duration
	CORSOrigins   []string

	AccessToken string
	JWTSecret   string

	PostgresDSN string
	AutoMigrate bool

	FeedMode    string
	FeedWSURL   string
	FeedChannel string

	RedisAddr        string
	PresenceTTL      time.Duration
	BroadcastChannel string

	SnapshotTimeout   time.Duration
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	ListenerBuffer    int
	ExpiryInterval    time.Duration
	TestDuration      time.Duration

	// Storage is nil when no buckets are configured; avatar and image
	// commands then fail with a validation error.
	Storage *gcp.Config

	OtelEnabled     bool
	OtelEndpoint    string
	OtelSampleRatio float64
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		HTTPAddr:      envutil.String("HTTP_ADDR", ":8089", log),
		ShutdownGrace: envutil.Duration("HTTP_SHUTDOWN_GRACE", 5*time.Second, log),
		CORSOrigins:   splitList(envutil.String("CORS_ALLOWED_ORIGINS", "", log)),

		AccessToken: envutil.String("SESSION_ACCESS_TOKEN", "", log),
		JWTSecret:   envutil.String("SESSION_JWT_SECRET", "", log),

		PostgresDSN: backend.PostgresDSN(log),
		AutoMigrate: envutil.Bool("BACKEND_AUTO_MIGRATE", false, log),

		FeedMode:    strings.ToLower(envutil.String("FEED_MODE", FeedPostgres, log)),
		FeedWSURL:   envutil.String("FEED_WS_URL", "", log),
		FeedChannel: envutil.String("FEED_CHANNEL", "row_changes", log),

		RedisAddr:        envutil.String("REDIS_ADDR", "", log),
		PresenceTTL:      envutil.Duration("REDIS_PRESENCE_TTL", 45*time.Second, log),
		BroadcastChannel: envutil.String("REDIS_BROADCAST_CHANNEL", "test-updates", log),

		SnapshotTimeout:   envutil.Duration("SNAPSHOT_TIMEOUT", 20*time.Second, log),
		ReconnectDelay:    envutil.Duration("RECONNECT_DELAY", 2*time.Second, log),
		ReconnectMaxDelay: envutil.Duration("RECONNECT_MAX_DELAY", 30*time.Second, log),
		ListenerBuffer:    envutil.Int("LISTENER_BUFFER", 1024, log),
		ExpiryInterval:    envutil.Duration("TEST_EXPIRY_INTERVAL", time.Second, log),
		TestDuration:      envutil.Duration("TEST_DURATION", classroom.DefaultTestDuration, log),

		OtelEnabled:     envutil.Bool("OTEL_ENABLED", false, log),
		OtelEndpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "", log),
		OtelSampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1, log),
	}

	avatars := envutil.String("AVATAR_GCS_BUCKET_NAME", "", log)
	lessons := envutil.String("LESSON_GCS_BUCKET_NAME", "", log)
	if avatars != "" || lessons != "" {
		cfg.Storage = &gcp.Config{
			Mode:          envutil.String("OBJECT_STORAGE_MODE", "", log),
			EmulatorHost:  envutil.String("STORAGE_EMULATOR_HOST", "", log),
			PublicBaseURL: envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", "", log),
			Credentials:   envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "", log),
			Avatars:       gcp.Bucket{Name: avatars, CDNDomain: envutil.String("AVATAR_CDN_DOMAIN", "", log)},
			Lessons:       gcp.Bucket{Name: lessons, CDNDomain: envutil.String("LESSON_CDN_DOMAIN", "", log)},
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return fmt.Errorf("missing SESSION_ACCESS_TOKEN")
	}
	switch c.FeedMode {
	case FeedPostgres:
		if c.RedisAddr == "" {
			return fmt.Errorf("missing REDIS_ADDR (required for presence and broadcast with FEED_MODE=%s)", FeedPostgres)
		}
	case FeedWebsocket:
		if c.FeedWSURL == "" {
			return fmt.Errorf("FEED_MODE=%s requires FEED_WS_URL", FeedWebsocket)
		}
	default:
		return fmt.Errorf("invalid FEED_MODE=%q (allowed: %q, %q)", c.FeedMode, FeedPostgres, FeedWebsocket)
	}
	if c.TestDuration <= 0 {
		return fmt.Errorf("TEST_DURATION must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
