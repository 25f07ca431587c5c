package models

import (
	"fmt"
	"strings"
	"time"
)

// RuleType is the action class a match implies.
type RuleType string

const (
	RuleTypeBan     RuleType = "BAN"
	RuleTypeNotify  RuleType = "NOTIFY"
	RuleTypeObserve RuleType = "OBSERVE"
)

// ParseRuleType accepts any casing.
func ParseRuleType(s string) (RuleType, error) {
	switch t := RuleType(strings.ToUpper(strings.TrimSpace(s))); t {
	case RuleTypeBan, RuleTypeNotify, RuleTypeObserve:
		return t, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown rule type %q", s))
	}
}

// Rank orders rule evaluation: BAN first, then NOTIFY, then OBSERVE.
func (t RuleType) Rank() int {
	switch t {
	case RuleTypeBan:
		return 0
	case RuleTypeNotify:
		return 1
	default:
		return 2
	}
}

// Category maps a rule type to its notification category.
// OBSERVE rules never notify, so ok is false for them.
func (t RuleType) Category() (category NotificationCategory, ok bool) {
	switch t {
	case RuleTypeBan:
		return CategoryBan, true
	case RuleTypeNotify:
		return CategoryNotification, true
	default:
		return "", false
	}
}

// Rule belongs to exactly one chat and is removed with it.
type Rule struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ChatID          int64     `gorm:"not null;index" json:"chat_id"`
	RuleText        string    `gorm:"type:text;not null" json:"rule_text"`
	ExplanationText string    `gorm:"type:text;not null;default:''" json:"explanation_text"`
	Type            RuleType  `gorm:"type:varchar(16);not null" json:"type"`
	Activated       bool      `gorm:"not null" json:"activated"`
	IsSilent        bool      `gorm:"not null" json:"is_silent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Chat *Chat `gorm:"foreignKey:ChatID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM.
func (Rule) TableName() string {
	return "rules"
}

// RuleWithCount is a rule listing row with its violation tally.
type RuleWithCount struct {
	Rule
	ViolationCount int64 `json:"violation_count"`
}
