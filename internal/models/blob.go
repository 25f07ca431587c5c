package models

import "github.com/google/uuid"

// MessageImage is an opaque image attachment keyed by UUID.
type MessageImage struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Image []byte    `gorm:"not null" json:"-"`
}

// TableName specifies the table name for GORM.
func (MessageImage) TableName() string {
	return "message_images"
}

// MessageAudio is an opaque audio attachment keyed by UUID.
type MessageAudio struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Audio []byte    `gorm:"not null" json:"-"`
}

// TableName specifies the table name for GORM.
func (MessageAudio) TableName() string {
	return "message_audios"
}
