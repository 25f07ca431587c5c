package repository

import (
	"context"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
)

// evaluationOrder puts BAN rules first, then NOTIFY, then OBSERVE, then by id.
const evaluationOrder = "CASE rules.type WHEN 'BAN' THEN 0 WHEN 'NOTIFY' THEN 1 ELSE 2 END, rules.id ASC"

// RuleRepository stores chat rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.Rule) error
	GetByID(ctx context.Context, id uint) (*models.Rule, error)
	Update(ctx context.Context, rule *models.Rule) error
	SetActivated(ctx context.Context, id uint, activated bool) error
	ActiveForChat(ctx context.Context, chatID int64) ([]models.Rule, error)
	ForChatsByType(ctx context.Context, chatIDs []int64, ruleType models.RuleType) ([]models.Rule, error)
	ListForChat(ctx context.Context, chatID int64) ([]models.RuleWithCount, error)
}

type ruleRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewRuleRepository creates a RuleRepository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db, log: observability.NewRepoLogger("rules")}
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.Rule) error {
	if err := r.db.WithContext(ctx).Omit("Chat").Create(rule).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return storeErr(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"rule_id": rule.ID, "chat_id": rule.ChatID, "type": rule.Type})
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, id uint) (*models.Rule, error) {
	var rule models.Rule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, translate(err, "Rule", id)
	}
	return &rule, nil
}

// Update writes the editable fields. Chat ownership and activation are not editable here.
func (r *ruleRepository) Update(ctx context.Context, rule *models.Rule) error {
	res := r.db.WithContext(ctx).Model(&models.Rule{}).Where("id = ?", rule.ID).Updates(map[string]interface{}{
		"rule_text":        rule.RuleText,
		"explanation_text": rule.ExplanationText,
		"type":             rule.Type,
		"is_silent":        rule.IsSilent,
	})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Rule", rule.ID)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"rule_id": rule.ID})
	return nil
}

func (r *ruleRepository) SetActivated(ctx context.Context, id uint, activated bool) error {
	res := r.db.WithContext(ctx).Model(&models.Rule{}).Where("id = ?", id).Update("activated", activated)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Rule", id)
	}
	r.log.LogUpdate(ctx, map[string]interface{}{"rule_id": id, "activated": activated})
	return nil
}

// ActiveForChat returns the chat's activated rules in evaluation order.
func (r *ruleRepository) ActiveForChat(ctx context.Context, chatID int64) ([]models.Rule, error) {
	defer observability.TrackQuery("active_for_chat", "rules")()

	var rules []models.Rule
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND activated = ?", chatID, true).
		Order(evaluationOrder).
		Find(&rules).Error
	return rules, storeErr(err)
}

// ForChatsByType returns the chats' rules of one type, deactivated ones included.
func (r *ruleRepository) ForChatsByType(ctx context.Context, chatIDs []int64, ruleType models.RuleType) ([]models.Rule, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	var rules []models.Rule
	err := r.db.WithContext(ctx).
		Where("chat_id IN ? AND type = ?", chatIDs, ruleType).
		Order("chat_id ASC, id ASC").
		Find(&rules).Error
	return rules, storeErr(err)
}

// ListForChat returns every rule of the chat, active or not, with its violation count.
func (r *ruleRepository) ListForChat(ctx context.Context, chatID int64) ([]models.RuleWithCount, error) {
	var out []models.RuleWithCount
	err := r.db.WithContext(ctx).Table("rules").
		Select("rules.*, COUNT(rule_violations.id) AS violation_count").
		Joins("LEFT JOIN rule_violations ON rule_violations.rule_id = rules.id").
		Where("rules.chat_id = ?", chatID).
		Group("rules.id").
		Order(evaluationOrder).
		Scan(&out).Error
	return out, storeErr(err)
}
