package app

import (
	"strings"
	"testing"
	"time"

	"github.com/yungbote/classsync/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_ACCESS_TOKEN", "tok")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("POSTGRES_DSN", "postgres://x@localhost/db")
	t.Setenv("AVATAR_GCS_BUCKET_NAME", "")
	t.Setenv("LESSON_GCS_BUCKET_NAME", "")
	t.Setenv("FEED_MODE", "")

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.FeedMode != FeedPostgres || cfg.FeedChannel != "row_changes" {
		t.Fatalf("feed defaults: %q %q", cfg.FeedMode, cfg.FeedChannel)
	}
	if cfg.TestDuration != 10*time.Minute || cfg.PresenceTTL != 45*time.Second {
		t.Fatalf("durations: %v %v", cfg.TestDuration, cfg.PresenceTTL)
	}
	if cfg.Storage != nil {
		t.Fatalf("storage should be off without buckets")
	}
	if cfg.PostgresDSN != "postgres://x@localhost/db" {
		t.Fatalf("dsn = %q", cfg.PostgresDSN)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no token", map[string]string{"SESSION_ACCESS_TOKEN": ""}, "SESSION_ACCESS_TOKEN"},
		{"no redis", map[string]string{"SESSION_ACCESS_TOKEN": "t", "REDIS_ADDR": ""}, "REDIS_ADDR"},
		{"ws without url", map[string]string{"SESSION_ACCESS_TOKEN": "t", "FEED_MODE": "websocket", "FEED_WS_URL": ""}, "FEED_WS_URL"},
		{"bad mode", map[string]string{"SESSION_ACCESS_TOKEN": "t", "FEED_MODE": "kafka"}, "FEED_MODE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FEED_MODE", "")
			t.Setenv("REDIS_ADDR", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(logger.Nop())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadConfigStorage(t *testing.T) {
	t.Setenv("SESSION_ACCESS_TOKEN", "tok")
	t.Setenv("FEED_MODE", "websocket")
	t.Setenv("FEED_WS_URL", "ws://gateway/ws")
	t.Setenv("AVATAR_GCS_BUCKET_NAME", "avatars")
	t.Setenv("LESSON_GCS_BUCKET_NAME", "lessons")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a, http://b")

	cfg, err := LoadConfig(logger.Nop())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage == nil || cfg.Storage.Avatars.Name != "avatars" || cfg.Storage.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b" {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
}
