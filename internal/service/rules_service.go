package service

import (
	"context"
	"strings"

	"chatwarden/internal/cache"
	"chatwarden/internal/matcher"
	"chatwarden/internal/models"
	"chatwarden/internal/repository"
)

const maxRuleTextLen = 4000

// RuleInput is the editable part of a rule.
type RuleInput struct {
	RuleText        string `json:"rule_text"`
	ExplanationText string `json:"explanation_text"`
	Type            string `json:"type"`
	IsSilent        bool   `json:"is_silent"`
}

// RulesService manages chat rules and keeps the active-rule cache coherent.
type RulesService struct {
	rules   repository.RuleRepository
	chats   repository.ChatRepository
	cache   *cache.RuleCache
	matcher matcher.Matcher
}

// NewRulesService returns a new RulesService.
func NewRulesService(rules repository.RuleRepository, chats repository.ChatRepository, rc *cache.RuleCache, m matcher.Matcher) *RulesService {
	return &RulesService{rules: rules, chats: chats, cache: rc, matcher: m}
}

func (s *RulesService) validate(in RuleInput) (models.RuleType, error) {
	text := strings.TrimSpace(in.RuleText)
	if text == "" {
		return "", models.NewValidationError("rule_text is required")
	}
	if len(text) > maxRuleTextLen {
		return "", models.NewValidationError("rule_text is too long")
	}
	ruleType, err := models.ParseRuleType(in.Type)
	if err != nil {
		return "", err
	}
	// Reject rules the matcher cannot evaluate before they reach the pipeline.
	if _, err := s.matcher.Matches(text, ""); err != nil {
		return "", models.NewValidationError("rule_text cannot be evaluated: " + err.Error())
	}
	return ruleType, nil
}

// Create adds an activated rule to an existing chat.
func (s *RulesService) Create(ctx context.Context, chatID int64, in RuleInput) (*models.Rule, error) {
	ruleType, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return nil, err
	}

	rule := &models.Rule{
		ChatID:          chatID,
		RuleText:        strings.TrimSpace(in.RuleText),
		ExplanationText: strings.TrimSpace(in.ExplanationText),
		Type:            ruleType,
		Activated:       true,
		IsSilent:        in.IsSilent,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, chatID)
	return rule, nil
}

// Update rewrites text, explanation, type and silence of an existing rule.
func (s *RulesService) Update(ctx context.Context, ruleID uint, in RuleInput) (*models.Rule, error) {
	ruleType, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	rule.RuleText = strings.TrimSpace(in.RuleText)
	rule.ExplanationText = strings.TrimSpace(in.ExplanationText)
	rule.Type = ruleType
	rule.IsSilent = in.IsSilent
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, rule.ChatID)
	return rule, nil
}

// SetActivated switches a rule on or off.
func (s *RulesService) SetActivated(ctx context.Context, ruleID uint, activated bool) (*models.Rule, error) {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if err := s.rules.SetActivated(ctx, ruleID, activated); err != nil {
		return nil, err
	}
	rule.Activated = activated
	s.cache.Invalidate(ctx, rule.ChatID)
	return rule, nil
}

// Get returns one rule.
func (s *RulesService) Get(ctx context.Context, ruleID uint) (*models.Rule, error) {
	return s.rules.GetByID(ctx, ruleID)
}

// ListForChat returns every rule of the chat with its violation count.
func (s *RulesService) ListForChat(ctx context.Context, chatID int64) ([]models.RuleWithCount, error) {
	return s.rules.ListForChat(ctx, chatID)
}

// ActiveRules returns the chat's rules in evaluation order, through the cache.
func (s *RulesService) ActiveRules(ctx context.Context, chatID int64) ([]models.Rule, error) {
	return s.cache.ActiveRules(ctx, chatID, s.rules.ActiveForChat)
}
