package repository

import (
	"context"

	"chatwarden/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BlobRepository stores image and audio payloads in the database.
type BlobRepository interface {
	PutImage(ctx context.Context, data []byte) (uuid.UUID, error)
	GetImage(ctx context.Context, id uuid.UUID) ([]byte, error)
	PutAudio(ctx context.Context, data []byte) (uuid.UUID, error)
	GetAudio(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type blobRepository struct {
	db *gorm.DB
}

// NewBlobRepository creates a BlobRepository.
func NewBlobRepository(db *gorm.DB) BlobRepository {
	return &blobRepository{db: db}
}

func (r *blobRepository) PutImage(ctx context.Context, data []byte) (uuid.UUID, error) {
	row := models.MessageImage{ID: uuid.New(), Image: data}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, storeErr(err)
	}
	return row.ID, nil
}

func (r *blobRepository) GetImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var row models.MessageImage
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Image", id)
	}
	return row.Image, nil
}

func (r *blobRepository) PutAudio(ctx context.Context, data []byte) (uuid.UUID, error) {
	row := models.MessageAudio{ID: uuid.New(), Audio: data}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, storeErr(err)
	}
	return row.ID, nil
}

func (r *blobRepository) GetAudio(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var row models.MessageAudio
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Audio", id)
	}
	return row.Audio, nil
}
