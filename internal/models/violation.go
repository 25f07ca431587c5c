package models

import (
	"fmt"
	"strings"
	"time"
)

// ViolatorMessage is an inbound message that was checked against rules. Immutable.
// ChatID is informational only: deleting a chat keeps its messages.
type ViolatorMessage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ViolatorID int64     `gorm:"not null;index" json:"violator_id"`
	ChatID     int64     `gorm:"not null;index" json:"chat_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	Timestamp  time.Time `gorm:"not null" json:"timestamp"`
	PostID     int64     `gorm:"not null" json:"post_id"`

	Violator *User `gorm:"foreignKey:ViolatorID;references:ID;constraint:OnDelete:CASCADE" json:"violator,omitempty"`
}

// TableName specifies the table name for GORM.
func (ViolatorMessage) TableName() string {
	return "violator_messages"
}

// RuleViolation records that one message matched one rule at DetectedAt. Immutable.
type RuleViolation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RuleID        uint      `gorm:"not null;index" json:"rule_id"`
	ViolatorMsgID uint      `gorm:"column:violator_msg_id;not null;index" json:"violator_msg_id"`
	DetectedAt    time.Time `gorm:"not null;index" json:"detected_at"`

	Rule        *Rule            `gorm:"foreignKey:RuleID;references:ID;constraint:OnDelete:CASCADE" json:"rule,omitempty"`
	ViolatorMsg *ViolatorMessage `gorm:"foreignKey:ViolatorMsgID;references:ID;constraint:OnDelete:CASCADE" json:"violator_msg,omitempty"`
}

// TableName specifies the table name for GORM.
func (RuleViolation) TableName() string {
	return "rule_violations"
}

// Decision is a moderator ruling on a violation.
type Decision string

const (
	DecisionBan   Decision = "BAN"
	DecisionUnban Decision = "UNBAN"
)

// ParseDecision accepts any casing.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionBan, DecisionUnban:
		return d, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown decision %q", s))
	}
}

// RuleViolationDecision is one append-only ledger entry.
type RuleViolationDecision struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	RuleViolationID uint      `gorm:"not null;index" json:"rule_violation_id"`
	ModeratorID     int64     `gorm:"not null;index" json:"moderator_id"`
	Timestamp       time.Time `gorm:"not null" json:"timestamp"`
	Decision        Decision  `gorm:"type:varchar(8);not null" json:"decision"`

	RuleViolation *RuleViolation `gorm:"foreignKey:RuleViolationID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Moderator     *User          `gorm:"foreignKey:ModeratorID;references:ID;constraint:OnDelete:CASCADE" json:"moderator,omitempty"`
}

// TableName specifies the table name for GORM.
func (RuleViolationDecision) TableName() string {
	return "rule_violation_decision"
}

// Status is the derived state of a violation.
type Status string

const (
	StatusBan       Status = "BAN"
	StatusUnban     Status = "UNBAN"
	StatusUndecided Status = "UNDECIDED"
)

// FoldStatus returns the decision with the greatest timestamp, ties going to the
// greatest id. An empty log is UNDECIDED. Input order does not matter.
func FoldStatus(decisions []RuleViolationDecision) Status {
	var latest *RuleViolationDecision
	for i := range decisions {
		d := &decisions[i]
		if latest == nil ||
			d.Timestamp.After(latest.Timestamp) ||
			(d.Timestamp.Equal(latest.Timestamp) && d.ID > latest.ID) {
			latest = d
		}
	}
	if latest == nil {
		return StatusUndecided
	}
	return Status(latest.Decision)
}

// ViolationDetail is the read model behind violation listings and search.
type ViolationDetail struct {
	ID          uint      `json:"id"`
	RuleID      uint      `json:"rule_id"`
	ChatID      int64     `json:"chat_id"`
	DetectedAt  time.Time `json:"detected_at"`
	MessageID   uint      `json:"message_id"`
	MessageText string    `json:"message_text"`
	PostID      int64     `json:"post_id"`
	ViolatorID  int64     `json:"violator_id"`
	Username    string    `json:"username"`
	FullName    string    `json:"full_name"`
	RuleText    string    `json:"rule_text"`
	RuleType    RuleType  `json:"rule_type"`
}
