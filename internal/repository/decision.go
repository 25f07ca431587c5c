package repository

import (
	"context"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
)

// DecisionEntry is a decision joined with its violation's rule and chat.
type DecisionEntry struct {
	ID              uint            `json:"id"`
	RuleViolationID uint            `json:"rule_violation_id"`
	ModeratorID     int64           `json:"moderator_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Decision        models.Decision `json:"decision"`
	RuleID          uint            `json:"rule_id"`
	ChatID          int64           `json:"chat_id"`
	ViolatorID      int64           `json:"violator_id"`
}

// DecisionRepository is the append-only decision ledger.
type DecisionRepository interface {
	Append(ctx context.Context, d *models.RuleViolationDecision) error
	ListForViolation(ctx context.Context, violationID uint) ([]models.RuleViolationDecision, error)
	ListForChat(ctx context.Context, chatID int64, moderatorID *int64, limit, offset int) ([]DecisionEntry, error)
}

type decisionRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewDecisionRepository creates a DecisionRepository.
func NewDecisionRepository(db *gorm.DB) DecisionRepository {
	return &decisionRepository{db: db, log: observability.NewRepoLogger("rule_violation_decision")}
}

// Append always inserts. Rows are never updated or deleted except by cascade.
func (r *decisionRepository) Append(ctx context.Context, d *models.RuleViolationDecision) error {
	defer observability.TrackQuery("append", "rule_violation_decision")()

	if err := r.db.WithContext(ctx).Omit("RuleViolation", "Moderator").Create(d).Error; err != nil {
		r.log.LogError(ctx, err, "append")
		return storeErr(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{
		"id":                d.ID,
		"rule_violation_id": d.RuleViolationID,
		"moderator_id":      d.ModeratorID,
		"decision":          d.Decision,
	})
	return nil
}

// ListForViolation returns the log oldest first.
func (r *decisionRepository) ListForViolation(ctx context.Context, violationID uint) ([]models.RuleViolationDecision, error) {
	var out []models.RuleViolationDecision
	err := r.db.WithContext(ctx).
		Where("rule_violation_id = ?", violationID).
		Order(`"timestamp" ASC, id ASC`).
		Find(&out).Error
	return out, storeErr(err)
}

// ListForChat pages decisions taken on the chat's violations, newest first.
func (r *decisionRepository) ListForChat(ctx context.Context, chatID int64, moderatorID *int64, limit, offset int) ([]DecisionEntry, error) {
	q := r.db.WithContext(ctx).Table("rule_violation_decision").
		Select(`rule_violation_decision.id AS id,
			rule_violation_decision.rule_violation_id AS rule_violation_id,
			rule_violation_decision.moderator_id AS moderator_id,
			rule_violation_decision.timestamp AS timestamp,
			rule_violation_decision.decision AS decision,
			rule_violations.rule_id AS rule_id,
			rules.chat_id AS chat_id,
			violator_messages.violator_id AS violator_id`).
		Joins("JOIN rule_violations ON rule_violations.id = rule_violation_decision.rule_violation_id").
		Joins("JOIN rules ON rules.id = rule_violations.rule_id").
		Joins("JOIN violator_messages ON violator_messages.id = rule_violations.violator_msg_id").
		Where("rules.chat_id = ?", chatID)
	if moderatorID != nil {
		q = q.Where("rule_violation_decision.moderator_id = ?", *moderatorID)
	}

	var out []DecisionEntry
	err := q.Order("rule_violation_decision.timestamp DESC, rule_violation_decision.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&out).Error
	return out, storeErr(err)
}
