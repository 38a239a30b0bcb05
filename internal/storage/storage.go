package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cliphub/apiserver/config"
)

// ObjectStorage defines the object operations used by the app across
// backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API. When a
// public base URL is configured (CDN or reverse proxy in front of the
// bucket) it takes precedence over the backend's native URL scheme.
type Storage struct {
	backend       ObjectStorage
	publicBaseURL string
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage, publicBaseURL string) *Storage {
	return &Storage{
		backend:       backend,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

// NewFromConfig constructs a Storage for the configured backend.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	var err error
	switch cfg.Backend {
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewStorage(backend, cfg.PublicBaseURL), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// PublicURL returns the externally reachable URL of an object.
func (s *Storage) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return s.backend.PublicURL(key)
}

// KeyFromURL maps a URL previously returned by PublicURL back to its
// object key. The second return is false when the URL was not issued
// by this storage.
func (s *Storage) KeyFromURL(url string) (string, bool) {
	prefixes := []string{s.backend.PublicURL("")}
	if s.publicBaseURL != "" {
		prefixes = append([]string{s.publicBaseURL + "/"}, prefixes...)
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) && len(url) > len(prefix) {
			return url[len(prefix):], true
		}
	}
	return "", false
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
