package repository

import (
	"context"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatRepository stores chats and their platform capability flags.
type ChatRepository interface {
	Upsert(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id int64) (*models.Chat, error)
	SetActivated(ctx context.Context, id int64, activated bool) error
	UpdateRights(ctx context.Context, id int64, canRead, canRestrict, isBotIn bool) error
	ListForUser(ctx context.Context, userID int64) ([]models.Chat, error)
	Stats(ctx context.Context, id int64) (*models.ChatStats, error)
	Delete(ctx context.Context, id int64) error
}

type chatRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db, log: observability.NewRepoLogger("chats")}
}

// Upsert inserts the chat or refreshes title, activation and capabilities.
func (r *chatRepository) Upsert(ctx context.Context, chat *models.Chat) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "activated", "can_read_messages", "can_restrict_members", "is_bot_in", "updated_at"}),
	}).Create(chat).Error
	if err != nil {
		r.log.LogError(ctx, err, "upsert")
		return storeErr(err)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"chat_id": chat.ID, "activated": chat.Activated})
	return nil
}

func (r *chatRepository) GetByID(ctx context.Context, id int64) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).First(&chat, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Chat", id)
	}
	return &chat, nil
}

func (r *chatRepository) SetActivated(ctx context.Context, id int64, activated bool) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"activated": activated})
}

func (r *chatRepository) UpdateRights(ctx context.Context, id int64, canRead, canRestrict, isBotIn bool) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"can_read_messages":    canRead,
		"can_restrict_members": canRestrict,
		"is_bot_in":            isBotIn,
	})
}

func (r *chatRepository) updateColumns(ctx context.Context, id int64, cols map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Chat", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"chat_id": id, "columns": len(cols)})
	return nil
}

// ListForUser returns activated chats where the user holds an active admin or moderator row.
func (r *chatRepository) ListForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.WithContext(ctx).
		Where("activated = ?", true).
		Where("id IN (?) OR id IN (?)",
			r.db.Model(&models.ChatAdmin{}).Select("chat_id").Where("user_id = ? AND activated = ?", userID, true),
			r.db.Model(&models.ChatModerator{}).Select("chat_id").Where("user_id = ? AND activated = ?", userID, true),
		).
		Order("title ASC").
		Find(&chats).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return chats, nil
}

func (r *chatRepository) Stats(ctx context.Context, id int64) (*models.ChatStats, error) {
	defer observability.TrackQuery("stats", "chats")()

	stats := &models.ChatStats{ChatID: id}
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Rule{}).Where("chat_id = ? AND activated = ?", id, true).Count(&stats.ActiveRules).Error; err != nil {
		return nil, storeErr(err)
	}
	if err := db.Model(&models.ChatModerator{}).Where("chat_id = ? AND activated = ?", id, true).Count(&stats.Moderators).Error; err != nil {
		return nil, storeErr(err)
	}
	if err := db.Model(&models.RuleViolation{}).
		Joins("JOIN rules ON rules.id = rule_violations.rule_id").
		Where("rules.chat_id = ?", id).
		Count(&stats.Violations).Error; err != nil {
		return nil, storeErr(err)
	}
	if err := db.Model(&models.RuleViolation{}).
		Joins("JOIN rules ON rules.id = rule_violations.rule_id").
		Joins("JOIN violator_messages ON violator_messages.id = rule_violations.violator_msg_id").
		Where("rules.chat_id = ?", id).
		Distinct("violator_messages.violator_id").
		Count(&stats.Violators).Error; err != nil {
		return nil, storeErr(err)
	}
	return stats, nil
}

// Delete removes the chat; rules, roster rows, violations and decisions cascade.
func (r *chatRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&models.Chat{}, "id = ?", id)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Chat", id)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"chat_id": id})
	return nil
}
