// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"testing"
	"time"

	"chatwarden/internal/database"
	"chatwarden/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with the full schema and
// foreign keys enforced. A single connection keeps the in-memory schema alive.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// ChatOption tweaks a fixture chat before insert.
type ChatOption func(*models.Chat)

// Inactive marks the fixture chat deactivated.
func Inactive() ChatOption {
	return func(c *models.Chat) { c.Activated = false }
}

// WithoutReadRights drops can_read_messages.
func WithoutReadRights() ChatOption {
	return func(c *models.Chat) { c.CanReadMessages = false }
}

// CreateChat inserts an active chat the bot can read and restrict in.
func CreateChat(t testing.TB, db *gorm.DB, id int64, opts ...ChatOption) *models.Chat {
	t.Helper()
	chat := &models.Chat{
		ID:                 id,
		Title:              gofakeit.Company(),
		Activated:          true,
		CanReadMessages:    true,
		CanRestrictMembers: true,
		IsBotIn:            true,
	}
	for _, opt := range opts {
		opt(chat)
	}
	require.NoError(t, db.Create(chat).Error)
	return chat
}

// CreateUser inserts a user with a fake username and full name.
func CreateUser(t testing.TB, db *gorm.DB, id int64) *models.User {
	t.Helper()
	user := &models.User{ID: id, Username: gofakeit.Username(), FullName: gofakeit.Name()}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateModerator inserts a user and an active moderator row for the chat.
func CreateModerator(t testing.TB, db *gorm.DB, chatID, userID int64) *models.User {
	t.Helper()
	user := CreateUser(t, db, userID)
	require.NoError(t, db.Create(&models.ChatModerator{ChatID: chatID, UserID: userID, Activated: true}).Error)
	return user
}

// CreateAdmin inserts a user and an active admin row for the chat.
func CreateAdmin(t testing.TB, db *gorm.DB, chatID, userID int64) *models.User {
	t.Helper()
	user := CreateUser(t, db, userID)
	require.NoError(t, db.Create(&models.ChatAdmin{ChatID: chatID, UserID: userID, Activated: true}).Error)
	return user
}

// CreateRule inserts an activated, non-silent rule of the given type.
func CreateRule(t testing.TB, db *gorm.DB, chatID int64, ruleType models.RuleType, text string) *models.Rule {
	t.Helper()
	rule := &models.Rule{ChatID: chatID, RuleText: text, Type: ruleType, Activated: true}
	require.NoError(t, db.Omit("Chat").Create(rule).Error)
	return rule
}

// CreateViolation inserts a message from violatorID and one violation of rule at detectedAt.
func CreateViolation(t testing.TB, db *gorm.DB, rule *models.Rule, violatorID int64, detectedAt time.Time) *models.RuleViolation {
	t.Helper()
	msg := &models.ViolatorMessage{
		ViolatorID: violatorID,
		ChatID:     rule.ChatID,
		Text:       gofakeit.Sentence(6),
		Timestamp:  detectedAt.UTC(),
		PostID:     int64(gofakeit.Number(1, 1_000_000)),
	}
	require.NoError(t, db.Omit("Violator").Create(msg).Error)
	v := &models.RuleViolation{RuleID: rule.ID, ViolatorMsgID: msg.ID, DetectedAt: detectedAt.UTC()}
	require.NoError(t, db.Omit("Rule", "ViolatorMsg").Create(v).Error)
	return v
}
