package repository

import (
	"context"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
)

// PolicyRepository stores per-moderator notification preference rows.
type PolicyRepository interface {
	ListForModerator(ctx context.Context, moderatorID int64) ([]models.NotificationPolicy, error)
	ListForModerators(ctx context.Context, moderatorIDs []int64) (map[int64][]models.NotificationPolicy, error)
	ReplaceCategory(ctx context.Context, moderatorID int64, category models.NotificationCategory, value models.PolicyValue) error
}

type policyRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPolicyRepository creates a PolicyRepository.
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db, log: observability.NewRepoLogger("notification_policies")}
}

func (r *policyRepository) ListForModerator(ctx context.Context, moderatorID int64) ([]models.NotificationPolicy, error) {
	var out []models.NotificationPolicy
	err := r.db.WithContext(ctx).Where("moderator_id = ?", moderatorID).Order("policy ASC").Find(&out).Error
	return out, storeErr(err)
}

// ListForModerators loads rows for many moderators in one query, grouped by moderator.
func (r *policyRepository) ListForModerators(ctx context.Context, moderatorIDs []int64) (map[int64][]models.NotificationPolicy, error) {
	out := make(map[int64][]models.NotificationPolicy, len(moderatorIDs))
	if len(moderatorIDs) == 0 {
		return out, nil
	}
	var rows []models.NotificationPolicy
	if err := r.db.WithContext(ctx).Where("moderator_id IN ?", moderatorIDs).Find(&rows).Error; err != nil {
		return nil, storeErr(err)
	}
	for _, row := range rows {
		out[row.ModeratorID] = append(out[row.ModeratorID], row)
	}
	return out, nil
}

// ReplaceCategory removes both rows of the category and inserts value, atomically.
// Afterwards the moderator holds exactly one row for that category.
func (r *policyRepository) ReplaceCategory(ctx context.Context, moderatorID int64, category models.NotificationCategory, value models.PolicyValue) error {
	notify, notNotify := category.Policies()
	if value != notify && value != notNotify {
		return models.NewValidationError("policy value does not belong to category " + string(category))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("moderator_id = ? AND policy IN ?", moderatorID, []models.PolicyValue{notify, notNotify}).
			Delete(&models.NotificationPolicy{}).Error; err != nil {
			return err
		}
		return tx.Omit("Moderator").Create(&models.NotificationPolicy{ModeratorID: moderatorID, Policy: value}).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "replace_category")
		return storeErr(err)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"moderator_id": moderatorID, "category": category, "policy": value})
	return nil
}
