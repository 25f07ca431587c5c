package service

import (
	"context"

	"chatwarden/internal/models"
	"chatwarden/internal/repository"
)

// EffectivePolicy is one category's resolved preference for a moderator.
type EffectivePolicy struct {
	Category models.NotificationCategory `json:"category"`
	State    models.PolicyState          `json:"state"`
	Notify   bool                        `json:"notify"`
}

// PolicyService reads and toggles moderator notification preferences.
type PolicyService struct {
	policies repository.PolicyRepository
	defaults models.PolicyDefaults
}

// NewPolicyService returns a new PolicyService.
func NewPolicyService(policies repository.PolicyRepository, defaults models.PolicyDefaults) *PolicyService {
	return &PolicyService{policies: policies, defaults: defaults}
}

// SetCategory leaves exactly one row for the category: NOTIFY_* when enabled,
// NOT_NOTIFY_* otherwise. Any earlier conflict is cleared.
func (s *PolicyService) SetCategory(ctx context.Context, moderatorID int64, category models.NotificationCategory, enabled bool) error {
	notify, notNotify := category.Policies()
	value := notNotify
	if enabled {
		value = notify
	}
	return s.policies.ReplaceCategory(ctx, moderatorID, category, value)
}

// Effective resolves both categories for the moderator.
func (s *PolicyService) Effective(ctx context.Context, moderatorID int64) ([]EffectivePolicy, error) {
	rows, err := s.policies.ListForModerator(ctx, moderatorID)
	if err != nil {
		return nil, err
	}
	out := make([]EffectivePolicy, 0, 2)
	for _, category := range []models.NotificationCategory{models.CategoryBan, models.CategoryNotification} {
		state := models.ResolvePolicy(rows, category)
		out = append(out, EffectivePolicy{Category: category, State: state, Notify: s.defaults.ShouldNotify(state)})
	}
	return out, nil
}
