package app

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"tourcompanion/api/internal/storage"
	"tourcompanion/api/internal/store"
	"tourcompanion/api/internal/util"
)

// Upload is one file taken from a multipart form.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	ProjectID   string
}

func (s *Service) ListAssets(ctx context.Context, sess Session, projectID string) ([]store.Asset, error) {
	return s.store.ListAssets(ctx, sess.UserID, projectID)
}

// UploadAsset writes the object first and the row second; a failed insert
// removes the object again.
func (s *Service) UploadAsset(ctx context.Context, sess Session, upload Upload) (store.Asset, error) {
	if s.assets == nil {
		return store.Asset{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Asset storage is not configured", nil)
	}
	if err := storage.Validate(upload.Size, upload.ContentType); err != nil {
		return store.Asset{}, uploadError(err)
	}
	if upload.ProjectID != "" && !util.IsID(upload.ProjectID) {
		return store.Asset{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request validation failed", []FieldError{{Field: "projectId", Message: "Invalid UUID format"}})
	}

	key := storage.Key(sess.CreatorID, upload.ProjectID, upload.FileName)
	if err := s.assets.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return store.Asset{}, err
	}

	item := store.Asset{
		ID:         util.NewID(),
		FileName:   upload.FileName,
		FileURL:    s.assets.PublicURL(key),
		FileType:   upload.ContentType,
		FileSize:   upload.Size,
		StorageKey: key,
	}
	if upload.ProjectID != "" {
		item.ProjectID = &upload.ProjectID
	}
	asset, err := s.store.InsertAsset(ctx, sess.UserID, item)
	if err != nil {
		if removeErr := s.assets.Remove(ctx, key); removeErr != nil {
			s.logger.Warn("orphaned asset object", zap.String("key", key), zap.Error(removeErr))
		}
		return store.Asset{}, err
	}
	return asset, nil
}

// DeleteAsset drops the row, then the object. A failed object removal is
// logged; the row is already gone.
func (s *Service) DeleteAsset(ctx context.Context, sess Session, assetID string) error {
	asset, err := s.store.DeleteAsset(ctx, sess.UserID, assetID)
	if err != nil {
		return err
	}
	if s.assets == nil || asset.StorageKey == "" {
		return nil
	}
	if err := s.assets.Remove(ctx, asset.StorageKey); err != nil {
		s.logger.Warn("remove asset object", zap.String("key", asset.StorageKey), zap.Error(err))
	}
	return nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds 50 MiB", map[string]any{"maxBytes": storage.MaxUploadBytes})
	case errors.Is(err, storage.ErrUnsupportedType):
		return domainError(http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE", "Only images, videos and PDFs are accepted", nil)
	case errors.Is(err, storage.ErrEmpty):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "File is empty", nil)
	default:
		return err
	}
}
