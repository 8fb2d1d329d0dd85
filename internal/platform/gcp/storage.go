// Package gcp stores avatars and lesson images in Cloud Storage and hands
// back the public URLs profiles and words point at.
package gcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/classsync/internal/platform/logger"
)

type Bucket struct {
	Name      string
	CDNDomain string
}

type Config struct {
	Mode         string
	EmulatorHost string
	// PublicBaseURL overrides the host public URLs are built on.
	PublicBaseURL string
	Credentials   string
	Avatars       Bucket
	Lessons       Bucket
}

type Storage struct {
	log          *logger.Logger
	client       *storage.Client
	mode         Mode
	emulatorHost string
	publicBase   string
	avatars      Bucket
	lessons      Bucket
}

func NewStorage(ctx context.Context, log *logger.Logger, cfg Config) (*Storage, error) {
	mode, err := ResolveMode(cfg.Mode, cfg.EmulatorHost)
	if err != nil {
		return nil, err
	}
	if cfg.Avatars.Name == "" || cfg.Lessons.Name == "" {
		return nil, fmt.Errorf("avatar and lesson bucket names are required")
	}
	publicBase, err := publicBaseURL(mode, cfg)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	emulatorHost := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	if mode == ModeEmulator {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(ClientOptions(cfg.Credentials), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	s := &Storage{
		log:          log.With("service", "BlobStorage"),
		client:       client,
		mode:         mode,
		emulatorHost: emulatorHost,
		publicBase:   publicBase,
		avatars:      cfg.Avatars,
		lessons:      cfg.Lessons,
	}
	s.log.Info("Object storage initialized",
		"mode", mode,
		"public_base_url", publicBase,
		"avatar_bucket", cfg.Avatars.Name,
		"lesson_bucket", cfg.Lessons.Name,
	)
	return s, nil
}

func publicBaseURL(mode Mode, cfg Config) (string, error) {
	raw := strings.TrimSpace(cfg.PublicBaseURL)
	if raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}
	if mode == ModeEmulator {
		return strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"), nil
	}
	return "", nil
}

func (s *Storage) Close() error { return s.client.Close() }

func (s *Storage) UploadAvatar(ctx context.Context, key string, body io.Reader) (string, error) {
	return s.upload(ctx, s.avatars, key, body)
}

func (s *Storage) UploadLessonImage(ctx context.Context, key string, body io.Reader) (string, error) {
	return s.upload(ctx, s.lessons, key, body)
}

func (s *Storage) upload(ctx context.Context, b Bucket, key string, body io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	br := bufio.NewReaderSize(body, 512)
	head, _ := br.Peek(512)
	w := s.client.Bucket(b.Name).Object(key).NewWriter(ctx)
	w.ContentType = contentType(key, head)
	if _, err := io.Copy(w, br); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s/%s: %w", b.Name, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer %s/%s: %w", b.Name, key, err)
	}
	return s.PublicURL(b, key), nil
}

// DeleteURL removes the object a public URL points at. URLs outside the
// configured buckets, and objects already gone, are not errors.
func (s *Storage) DeleteURL(ctx context.Context, raw string) error {
	for _, b := range []Bucket{s.avatars, s.lessons} {
		key, ok := s.keyFromURL(b, raw)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		err := s.client.Bucket(b.Name).Object(key).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("delete %s/%s: %w", b.Name, key, err)
		}
		return nil
	}
	s.log.Debug("Skipping delete of foreign URL", "url", raw)
	return nil
}

// PublicURL is where clients fetch key from. A CDN domain wins over the
// public base; the emulator serves objects through its media endpoint.
func (s *Storage) PublicURL(b Bucket, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	switch {
	case b.CDNDomain != "":
		return fmt.Sprintf("https://%s/%s", b.CDNDomain, key)
	case s.mode == ModeEmulator:
		return fmt.Sprintf("%s%s?alt=media", s.emulatorPrefix(b), url.PathEscape(key))
	case s.publicBase != "":
		return fmt.Sprintf("%s/%s/%s", s.publicBase, b.Name, key)
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.Name, key)
	}
}

func (s *Storage) emulatorPrefix(b Bucket) string {
	base := s.publicBase
	if base == "" {
		base = s.emulatorHost
	}
	return fmt.Sprintf("%s/storage/v1/b/%s/o/", base, url.PathEscape(b.Name))
}

func (s *Storage) keyFromURL(b Bucket, raw string) (string, bool) {
	var prefix string
	switch {
	case b.CDNDomain != "":
		prefix = fmt.Sprintf("https://%s/", b.CDNDomain)
	case s.mode == ModeEmulator:
		prefix = s.emulatorPrefix(b)
		rest, ok := strings.CutPrefix(raw, prefix)
		if !ok {
			return "", false
		}
		key, err := url.PathUnescape(strings.TrimSuffix(rest, "?alt=media"))
		return key, err == nil && key != ""
	case s.publicBase != "":
		prefix = fmt.Sprintf("%s/%s/", s.publicBase, b.Name)
	default:
		prefix = fmt.Sprintf("https://storage.googleapis.com/%s/", b.Name)
	}
	key, ok := strings.CutPrefix(raw, prefix)
	return key, ok && key != ""
}

func contentType(key string, head []byte) string {
	s := strings.ToLower(key)
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case len(head) > 0:
		return http.DetectContentType(head)
	default:
		return "application/octet-stream"
	}
}
