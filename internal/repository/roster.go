package repository

import (
	"context"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RosterEntry is one admin or moderator row joined with the user.
type RosterEntry struct {
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	Activated bool   `json:"activated"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
}

// RosterRepository manages chat admins and moderators.
type RosterRepository interface {
	SetAdmin(ctx context.Context, chatID, userID int64, activated bool) error
	SetModerator(ctx context.Context, chatID, userID int64, activated bool) error
	IsActiveAdmin(ctx context.Context, userID, chatID int64) (bool, error)
	IsActiveModerator(ctx context.Context, userID, chatID int64) (bool, error)
	HasAdminRow(ctx context.Context, userID, chatID int64) (bool, error)
	ActiveModeratorIDs(ctx context.Context, chatID int64) ([]int64, error)
	ModeratedChatIDs(ctx context.Context, userID int64) ([]int64, error)
	AdministeredChatIDs(ctx context.Context, userID int64) ([]int64, error)
	ListModerators(ctx context.Context, chatID int64) ([]RosterEntry, error)
	ListAdmins(ctx context.Context, chatID int64) ([]RosterEntry, error)
}

type rosterRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewRosterRepository creates a RosterRepository.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db, log: observability.NewRepoLogger("chat_roster")}
}

// SetAdmin inserts or toggles the (chat, user) admin row. Composite key keeps one row per pair.
func (r *rosterRepository) SetAdmin(ctx context.Context, chatID, userID int64, activated bool) error {
	row := models.ChatAdmin{ChatID: chatID, UserID: userID, Activated: activated}
	return r.upsert(ctx, &row, "admin", chatID, userID, activated)
}

func (r *rosterRepository) SetModerator(ctx context.Context, chatID, userID int64, activated bool) error {
	row := models.ChatModerator{ChatID: chatID, UserID: userID, Activated: activated}
	return r.upsert(ctx, &row, "moderator", chatID, userID, activated)
}

func (r *rosterRepository) upsert(ctx context.Context, row interface{}, role string, chatID, userID int64, activated bool) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"activated"}),
	}).Create(row).Error
	if err != nil {
		r.log.LogError(ctx, err, "set_"+role)
		return storeErr(err)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"role": role, "chat_id": chatID, "user_id": userID, "activated": activated})
	return nil
}

// IsActiveAdmin is true only when both the admin row and the chat are activated.
func (r *rosterRepository) IsActiveAdmin(ctx context.Context, userID, chatID int64) (bool, error) {
	return r.activeRole(ctx, "chat_admins", userID, chatID)
}

// IsActiveModerator is true only when both the moderator row and the chat are activated.
func (r *rosterRepository) IsActiveModerator(ctx context.Context, userID, chatID int64) (bool, error) {
	return r.activeRole(ctx, "chat_moderators", userID, chatID)
}

// HasAdminRow ignores the chat's own activation, so an admin can switch a
// deactivated chat back on.
func (r *rosterRepository) HasAdminRow(ctx context.Context, userID, chatID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatAdmin{}).
		Where("chat_id = ? AND user_id = ? AND activated = ?", chatID, userID, true).
		Count(&count).Error
	if err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

func (r *rosterRepository) activeRole(ctx context.Context, table string, userID, chatID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(table).
		Joins("JOIN chats ON chats.id = "+table+".chat_id").
		Where(table+".chat_id = ? AND "+table+".user_id = ?", chatID, userID).
		Where(table+".activated = ? AND chats.activated = ?", true, true).
		Count(&count).Error
	if err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

// ActiveModeratorIDs lists activated moderator rows for the chat, ordered by user id.
func (r *rosterRepository) ActiveModeratorIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.ChatModerator{}).
		Where("chat_id = ? AND activated = ?", chatID, true).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, storeErr(err)
}

// ModeratedChatIDs lists activated chats where the user is an activated moderator.
func (r *rosterRepository) ModeratedChatIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.ChatModerator{}).
		Joins("JOIN chats ON chats.id = chat_moderators.chat_id").
		Where("chat_moderators.user_id = ? AND chat_moderators.activated = ? AND chats.activated = ?", userID, true, true).
		Order("chat_moderators.chat_id ASC").
		Pluck("chat_moderators.chat_id", &ids).Error
	return ids, storeErr(err)
}

// AdministeredChatIDs lists activated chats where the user is an activated admin.
func (r *rosterRepository) AdministeredChatIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.ChatAdmin{}).
		Joins("JOIN chats ON chats.id = chat_admins.chat_id").
		Where("chat_admins.user_id = ? AND chat_admins.activated = ? AND chats.activated = ?", userID, true, true).
		Order("chat_admins.chat_id ASC").
		Pluck("chat_admins.chat_id", &ids).Error
	return ids, storeErr(err)
}

func (r *rosterRepository) ListModerators(ctx context.Context, chatID int64) ([]RosterEntry, error) {
	return r.list(ctx, "chat_moderators", chatID)
}

func (r *rosterRepository) ListAdmins(ctx context.Context, chatID int64) ([]RosterEntry, error) {
	return r.list(ctx, "chat_admins", chatID)
}

func (r *rosterRepository) list(ctx context.Context, table string, chatID int64) ([]RosterEntry, error) {
	var out []RosterEntry
	err := r.db.WithContext(ctx).Table(table).
		Select(table+".chat_id, "+table+".user_id, "+table+".activated, COALESCE(users.username, '') AS username, COALESCE(users.full_name, '') AS full_name").
		Joins("JOIN users ON users.user_id = "+table+".user_id").
		Where(table+".chat_id = ?", chatID).
		Order(table + ".user_id ASC").
		Scan(&out).Error
	return out, storeErr(err)
}
