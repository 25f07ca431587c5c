package models

import "time"

// Chat is a platform group under (or formerly under) moderation.
// Capability flags mirror what the platform granted the bot.
type Chat struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title              string    `gorm:"type:text;not null" json:"title"`
	Activated          bool      `gorm:"not null" json:"activated"`
	CanReadMessages    bool      `gorm:"not null" json:"can_read_messages"`
	CanRestrictMembers bool      `gorm:"not null" json:"can_restrict_members"`
	IsBotIn            bool      `gorm:"not null" json:"is_bot_in"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Chat) TableName() string {
	return "chats"
}

// User is a platform account. Shared across chats.
type User struct {
	ID       int64  `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	Username string `gorm:"type:text" json:"username"`
	FullName string `gorm:"type:text" json:"full_name"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// ChatAdmin is a user's admin standing in one chat.
type ChatAdmin struct {
	ChatID    int64 `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Activated bool  `gorm:"not null" json:"activated"`

	Chat *Chat `gorm:"foreignKey:ChatID;references:ID;constraint:OnDelete:CASCADE" json:"chat,omitempty"`
	User *User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (ChatAdmin) TableName() string {
	return "chat_admins"
}

// ChatModerator is a user's moderator standing in one chat. Independent of ChatAdmin.
type ChatModerator struct {
	ChatID    int64 `gorm:"primaryKey;autoIncrement:false" json:"chat_id"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Activated bool  `gorm:"not null" json:"activated"`

	Chat *Chat `gorm:"foreignKey:ChatID;references:ID;constraint:OnDelete:CASCADE" json:"chat,omitempty"`
	User *User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// TableName specifies the table name for GORM.
func (ChatModerator) TableName() string {
	return "chat_moderators"
}

// ChatStats is the dashboard summary of one chat.
type ChatStats struct {
	ChatID      int64 `json:"chat_id"`
	ActiveRules int64 `json:"active_rules"`
	Moderators  int64 `json:"moderators"`
	Violations  int64 `json:"violations"`
	Violators   int64 `json:"violators"`
}
