package service

import (
	"context"
	"sync"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/observability"
	"chatwarden/internal/repository"
)

const enforcementTimeout = 15 * time.Second

// Ledger appends moderator decisions and derives violation status from them.
type Ledger struct {
	violations  repository.ViolationRepository
	decisions   repository.DecisionRepository
	users       repository.UserRepository
	enforcement *Enforcement
	now         func() time.Time
	wg          sync.WaitGroup
}

// NewLedger returns a new Ledger. enforcement may be nil.
func NewLedger(
	violations repository.ViolationRepository,
	decisions repository.DecisionRepository,
	users repository.UserRepository,
	enforcement *Enforcement,
) *Ledger {
	return &Ledger{
		violations:  violations,
		decisions:   decisions,
		users:       users,
		enforcement: enforcement,
		now:         utcNow,
	}
}

// RecordDecision always appends, whatever the earlier decisions were.
// Authorization is the AccessGate's job; here only referential integrity is checked.
func (l *Ledger) RecordDecision(ctx context.Context, violationID uint, moderatorID int64, decision models.Decision) (*models.RuleViolationDecision, error) {
	if _, err := models.ParseDecision(string(decision)); err != nil {
		return nil, err
	}

	violation, err := l.violations.GetByID(ctx, violationID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, models.NewValidationError("violation does not exist")
		}
		return nil, err
	}
	exists, err := l.users.Exists(ctx, moderatorID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NewValidationError("moderator does not exist")
	}

	record := &models.RuleViolationDecision{
		RuleViolationID: violationID,
		ModeratorID:     moderatorID,
		Timestamp:       l.now(),
		Decision:        decision,
	}
	if err := l.decisions.Append(ctx, record); err != nil {
		return nil, err
	}
	observability.DecisionsRecorded.WithLabelValues(string(decision)).Inc()

	if l.enforcement != nil {
		l.enforceAsync(ctx, violation, decision)
	}
	return record, nil
}

// enforceAsync applies the decision in the platform without holding up the caller.
func (l *Ledger) enforceAsync(ctx context.Context, violation *models.RuleViolation, decision models.Decision) {
	detail, err := l.violations.GetDetail(ctx, violation.ID)
	if err != nil {
		observability.LogAsyncOperationError(ctx, "enforce_decision", err, map[string]interface{}{"violation_id": violation.ID})
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enforcementTimeout)
		defer cancel()
		if _, err := l.enforcement.Apply(ctx, detail.ChatID, detail.ViolatorID, decision); err != nil {
			observability.LogAsyncOperationError(ctx, "enforce_decision", err, map[string]interface{}{
				"violation_id": violation.ID,
				"decision":     decision,
			})
		}
	}()
}

// Wait blocks until in-flight enforcement calls finish.
func (l *Ledger) Wait() {
	l.wg.Wait()
}

// CurrentStatus folds the decision log: latest timestamp wins, ties go to the
// higher id, no decisions is UNDECIDED.
func (l *Ledger) CurrentStatus(ctx context.Context, violationID uint) (models.Status, error) {
	history, err := l.History(ctx, violationID)
	if err != nil {
		return "", err
	}
	return models.FoldStatus(history), nil
}

// History returns the decision log oldest first.
func (l *Ledger) History(ctx context.Context, violationID uint) ([]models.RuleViolationDecision, error) {
	if _, err := l.violations.GetByID(ctx, violationID); err != nil {
		return nil, err
	}
	return l.decisions.ListForViolation(ctx, violationID)
}
