package models

import (
	"fmt"
	"strings"
	"time"
)

// NotificationCategory groups rule types for notification preferences.
type NotificationCategory string

const (
	CategoryBan          NotificationCategory = "BAN"
	CategoryNotification NotificationCategory = "NOTIFICATION"
)

// ParseCategory accepts any casing.
func ParseCategory(s string) (NotificationCategory, error) {
	switch c := NotificationCategory(strings.ToUpper(strings.TrimSpace(s))); c {
	case CategoryBan, CategoryNotification:
		return c, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown notification category %q", s))
	}
}

// Policies returns the opt-in and opt-out row values for the category.
func (c NotificationCategory) Policies() (notify, notNotify PolicyValue) {
	if c == CategoryBan {
		return PolicyNotifyBan, PolicyNotNotifyBan
	}
	return PolicyNotifyNotification, PolicyNotNotifyNotification
}

// PolicyValue is one stored preference row value.
type PolicyValue string

const (
	PolicyNotifyBan             PolicyValue = "NOTIFY_BAN"
	PolicyNotNotifyBan          PolicyValue = "NOT_NOTIFY_BAN"
	PolicyNotifyNotification    PolicyValue = "NOTIFY_NOTIFICATION"
	PolicyNotNotifyNotification PolicyValue = "NOT_NOTIFY_NOTIFICATION"
)

// NotificationPolicy is one preference row. A moderator may hold several.
type NotificationPolicy struct {
	ModeratorID int64       `gorm:"primaryKey;autoIncrement:false" json:"moderator_id"`
	Policy      PolicyValue `gorm:"primaryKey;type:varchar(32)" json:"policy"`

	Moderator *User `gorm:"foreignKey:ModeratorID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM.
func (NotificationPolicy) TableName() string {
	return "notification_policies"
}

// PolicyState is the effective preference for one category, derived from row presence.
type PolicyState string

const (
	PolicyStateNotify    PolicyState = "NOTIFY"
	PolicyStateNotNotify PolicyState = "NOT_NOTIFY"
	PolicyStateUnset     PolicyState = "UNSET"
	PolicyStateConflict  PolicyState = "CONFLICT"
)

// ResolvePolicy folds a moderator's rows into the state for category.
func ResolvePolicy(rows []NotificationPolicy, category NotificationCategory) PolicyState {
	notify, notNotify := category.Policies()
	var hasNotify, hasNot bool
	for _, r := range rows {
		switch r.Policy {
		case notify:
			hasNotify = true
		case notNotify:
			hasNot = true
		}
	}
	switch {
	case hasNotify && hasNot:
		return PolicyStateConflict
	case hasNotify:
		return PolicyStateNotify
	case hasNot:
		return PolicyStateNotNotify
	default:
		return PolicyStateUnset
	}
}

// PolicyDefaults decides the ambiguous states. Loaded from NOTIFY_DEFAULT_* config.
type PolicyDefaults struct {
	Unset    bool
	Conflict bool
}

// ShouldNotify resolves a state to a delivery decision.
func (d PolicyDefaults) ShouldNotify(state PolicyState) bool {
	switch state {
	case PolicyStateNotify:
		return true
	case PolicyStateNotNotify:
		return false
	case PolicyStateConflict:
		return d.Conflict
	default:
		return d.Unset
	}
}

// ModeratorRuleLastSeen is the per (moderator, rule) delivery high-water mark.
// It only moves forward.
type ModeratorRuleLastSeen struct {
	ModeratorID       int64     `gorm:"primaryKey;autoIncrement:false" json:"moderator_id"`
	RuleID            uint      `gorm:"primaryKey;autoIncrement:false" json:"rule_id"`
	LastSeenTimestamp time.Time `gorm:"not null" json:"last_seen_timestamp"`

	Moderator *User `gorm:"foreignKey:ModeratorID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Rule      *Rule `gorm:"foreignKey:RuleID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM.
func (ModeratorRuleLastSeen) TableName() string {
	return "moderator_rule_last_seen"
}
