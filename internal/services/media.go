package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cliphub/apiserver/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MediaService uploads user images to object storage and returns
// their public URLs.
type MediaService struct {
	storage *storage.Storage
	logger  *zap.Logger
}

func NewMediaService(store *storage.Storage, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaService{storage: store, logger: logger}
}

// UploadImage stores an image under a random key inside folder and
// returns its public URL. The original filename only contributes its
// extension.
func (s *MediaService) UploadImage(ctx context.Context, folder, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := folder + "/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
	if err := s.storage.Put(ctx, key, r, size, contentType); err != nil {
		s.logger.Error("image upload failed",
			zap.String("folder", folder),
			zap.Error(err),
		)
		return "", fmt.Errorf("upload image: %w", err)
	}
	return s.storage.PublicURL(key), nil
}

// Remove deletes a previously uploaded image by its public URL.
// Best-effort: URLs not issued by this storage are ignored, and
// deletion failures are logged rather than propagated.
func (s *MediaService) Remove(ctx context.Context, url string) {
	key, ok := s.storage.KeyFromURL(url)
	if !ok {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("stale image cleanup failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
