package repository

import (
	"context"
	"strings"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
)

const violationDetailColumns = `rule_violations.id AS id,
	rule_violations.rule_id AS rule_id,
	rules.chat_id AS chat_id,
	rule_violations.detected_at AS detected_at,
	violator_messages.id AS message_id,
	violator_messages.text AS message_text,
	violator_messages.post_id AS post_id,
	violator_messages.violator_id AS violator_id,
	COALESCE(users.username, '') AS username,
	COALESCE(users.full_name, '') AS full_name,
	rules.rule_text AS rule_text,
	rules.type AS rule_type`

// ViolationRepository stores violator messages and the violations detected on them.
type ViolationRepository interface {
	RecordDetection(ctx context.Context, msg *models.ViolatorMessage, ruleIDs []uint, detectedAt time.Time) ([]models.RuleViolation, error)
	GetByID(ctx context.Context, id uint) (*models.RuleViolation, error)
	GetDetail(ctx context.Context, id uint) (*models.ViolationDetail, error)
	ListByRule(ctx context.Context, ruleID uint, limit, offset int) ([]models.ViolationDetail, int64, error)
	ListByRuleSince(ctx context.Context, ruleID uint, since *time.Time) ([]models.RuleViolation, error)
	Search(ctx context.Context, chatIDs []int64, query string, limit int) ([]models.ViolationDetail, error)
}

type violationRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewViolationRepository creates a ViolationRepository.
func NewViolationRepository(db *gorm.DB) ViolationRepository {
	return &violationRepository{db: db, log: observability.NewRepoLogger("rule_violations")}
}

// RecordDetection inserts the message and one violation per rule id in a single
// transaction. Either everything is stored or nothing is.
func (r *violationRepository) RecordDetection(ctx context.Context, msg *models.ViolatorMessage, ruleIDs []uint, detectedAt time.Time) ([]models.RuleViolation, error) {
	defer observability.TrackQuery("record_detection", "rule_violations")()

	violations := make([]models.RuleViolation, 0, len(ruleIDs))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Violator").Create(msg).Error; err != nil {
			return err
		}
		for _, ruleID := range ruleIDs {
			violations = append(violations, models.RuleViolation{
				RuleID:        ruleID,
				ViolatorMsgID: msg.ID,
				DetectedAt:    detectedAt,
			})
		}
		if len(violations) == 0 {
			return nil
		}
		return tx.Omit("Rule", "ViolatorMsg").Create(&violations).Error
	})
	if err != nil {
		msg.ID = 0
		r.log.LogError(ctx, err, "record_detection")
		return nil, storeErr(err)
	}
	r.log.LogCreate(ctx, map[string]interface{}{"message_id": msg.ID, "violations": len(violations)})
	return violations, nil
}

func (r *violationRepository) GetByID(ctx context.Context, id uint) (*models.RuleViolation, error) {
	var v models.RuleViolation
	if err := r.db.WithContext(ctx).Preload("Rule").First(&v, id).Error; err != nil {
		return nil, translate(err, "Violation", id)
	}
	return &v, nil
}

func (r *violationRepository) detailQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("rule_violations").
		Select(violationDetailColumns).
		Joins("JOIN rules ON rules.id = rule_violations.rule_id").
		Joins("JOIN violator_messages ON violator_messages.id = rule_violations.violator_msg_id").
		Joins("LEFT JOIN users ON users.user_id = violator_messages.violator_id")
}

func (r *violationRepository) GetDetail(ctx context.Context, id uint) (*models.ViolationDetail, error) {
	var out []models.ViolationDetail
	if err := r.detailQuery(ctx).Where("rule_violations.id = ?", id).Limit(1).Scan(&out).Error; err != nil {
		return nil, storeErr(err)
	}
	if len(out) == 0 {
		return nil, models.NewNotFoundError("Violation", id)
	}
	return &out[0], nil
}

// ListByRule pages a rule's violations newest first and returns the total.
func (r *violationRepository) ListByRule(ctx context.Context, ruleID uint, limit, offset int) ([]models.ViolationDetail, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.RuleViolation{}).Where("rule_id = ?", ruleID).Count(&total).Error; err != nil {
		return nil, 0, storeErr(err)
	}

	var out []models.ViolationDetail
	err := r.detailQuery(ctx).
		Where("rule_violations.rule_id = ?", ruleID).
		Order("rule_violations.detected_at DESC, rule_violations.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&out).Error
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return out, total, nil
}

// ListByRuleSince returns violations detected strictly after since, oldest first.
// A nil since returns the whole history.
func (r *violationRepository) ListByRuleSince(ctx context.Context, ruleID uint, since *time.Time) ([]models.RuleViolation, error) {
	q := r.db.WithContext(ctx).Where("rule_id = ?", ruleID)
	if since != nil {
		q = q.Where("detected_at > ?", since.UTC())
	}
	var out []models.RuleViolation
	err := q.Order("detected_at ASC, id ASC").Find(&out).Error
	return out, storeErr(err)
}

// Search matches violator username, full name or message text within the given chats.
func (r *violationRepository) Search(ctx context.Context, chatIDs []int64, query string, limit int) ([]models.ViolationDetail, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var out []models.ViolationDetail
	err := r.detailQuery(ctx).
		Where("rules.chat_id IN ?", chatIDs).
		Where("LOWER(COALESCE(users.username, '')) LIKE ? OR LOWER(COALESCE(users.full_name, '')) LIKE ? OR LOWER(violator_messages.text) LIKE ?", pattern, pattern, pattern).
		Order("rule_violations.detected_at DESC, rule_violations.id DESC").
		Limit(limit).
		Scan(&out).Error
	return out, storeErr(err)
}
