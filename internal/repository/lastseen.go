package repository

import (
	"context"
	"fmt"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	advanceAttempts = 4
	advanceBackoff  = 20 * time.Millisecond
)

// monotonicMax keeps the larger of the stored and proposed marker.
const monotonicMax = "CASE WHEN excluded.last_seen_timestamp > moderator_rule_last_seen.last_seen_timestamp " +
	"THEN excluded.last_seen_timestamp ELSE moderator_rule_last_seen.last_seen_timestamp END"

// LastSeenRepository stores per (moderator, rule) delivery high-water marks.
type LastSeenRepository interface {
	Get(ctx context.Context, moderatorID int64, ruleID uint) (time.Time, bool, error)
	GetMany(ctx context.Context, ruleID uint, moderatorIDs []int64) (map[int64]time.Time, error)
	Advance(ctx context.Context, moderatorID int64, ruleID uint, ts time.Time) error
}

type lastSeenRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewLastSeenRepository creates a LastSeenRepository.
func NewLastSeenRepository(db *gorm.DB) LastSeenRepository {
	return &lastSeenRepository{db: db, log: observability.NewRepoLogger("moderator_rule_last_seen")}
}

// Get returns the marker and whether one exists.
func (r *lastSeenRepository) Get(ctx context.Context, moderatorID int64, ruleID uint) (time.Time, bool, error) {
	var rows []models.ModeratorRuleLastSeen
	err := r.db.WithContext(ctx).
		Where("moderator_id = ? AND rule_id = ?", moderatorID, ruleID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return time.Time{}, false, storeErr(err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].LastSeenTimestamp.UTC(), true, nil
}

// GetMany returns markers for the moderators that have one on ruleID.
func (r *lastSeenRepository) GetMany(ctx context.Context, ruleID uint, moderatorIDs []int64) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time, len(moderatorIDs))
	if len(moderatorIDs) == 0 {
		return out, nil
	}
	var rows []models.ModeratorRuleLastSeen
	err := r.db.WithContext(ctx).
		Where("rule_id = ? AND moderator_id IN ?", ruleID, moderatorIDs).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err)
	}
	for _, row := range rows {
		out[row.ModeratorID] = row.LastSeenTimestamp.UTC()
	}
	return out, nil
}

// Advance sets the marker to max(existing, ts) in one upsert statement, so
// concurrent callers can never move it backwards. Serialization failures are
// retried; if they persist the caller gets CONCURRENCY_CONFLICT.
func (r *lastSeenRepository) Advance(ctx context.Context, moderatorID int64, ruleID uint, ts time.Time) error {
	defer observability.TrackQuery("advance", "moderator_rule_last_seen")()

	row := models.ModeratorRuleLastSeen{ModeratorID: moderatorID, RuleID: ruleID, LastSeenTimestamp: ts.UTC()}
	var err error
	for attempt := 1; attempt <= advanceAttempts; attempt++ {
		err = r.db.WithContext(ctx).Omit("Moderator", "Rule").Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "moderator_id"}, {Name: "rule_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_seen_timestamp": gorm.Expr(monotonicMax),
			}),
		}).Create(&row).Error
		if err == nil {
			return nil
		}
		if !isRetryableConflict(err) {
			r.log.LogError(ctx, err, "advance")
			return storeErr(err)
		}
		if attempt == advanceAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * advanceBackoff):
		}
	}

	r.log.LogError(ctx, err, "advance")
	return models.NewConcurrencyConflictError(
		fmt.Sprintf("last-seen marker for moderator %d rule %d kept conflicting", moderatorID, ruleID))
}
