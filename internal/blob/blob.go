// Package blob stores the image and audio attachments of violator messages,
// either in the database or in an S3-compatible bucket.
package blob

import (
	"context"
	"fmt"

	"chatwarden/internal/config"
	"chatwarden/internal/models"
	"chatwarden/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxSize caps one attachment.
const MaxSize = 20 << 20

// Store keeps attachments addressable by UUID.
type Store interface {
	PutImage(ctx context.Context, data []byte) (uuid.UUID, error)
	GetImage(ctx context.Context, id uuid.UUID) ([]byte, error)
	PutAudio(ctx context.Context, data []byte) (uuid.UUID, error)
	GetAudio(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// New picks the backend from BLOB_BACKEND.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB) (Store, error) {
	switch cfg.BlobBackend {
	case "", "db":
		return Limit(repository.NewBlobRepository(db)), nil
	case "s3":
		client, err := NewS3Client(S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		s := NewS3Store(client, cfg.S3Bucket)
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return Limit(s), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// Limit rejects empty or oversized payloads before they reach the backend.
func Limit(s Store) Store {
	return limited{s}
}

type limited struct {
	Store
}

func (l limited) PutImage(ctx context.Context, data []byte) (uuid.UUID, error) {
	if err := checkSize(data); err != nil {
		return uuid.Nil, err
	}
	return l.Store.PutImage(ctx, data)
}

func (l limited) PutAudio(ctx context.Context, data []byte) (uuid.UUID, error) {
	if err := checkSize(data); err != nil {
		return uuid.Nil, err
	}
	return l.Store.PutAudio(ctx, data)
}

func checkSize(data []byte) error {
	switch {
	case len(data) == 0:
		return models.NewValidationError("attachment is empty")
	case len(data) > MaxSize:
		return models.NewValidationError(fmt.Sprintf("attachment exceeds %d bytes", MaxSize))
	}
	return nil
}
