package server

import (
	"chatwarden/internal/middleware"
	"chatwarden/internal/models"
	"chatwarden/internal/service"

	"github.com/gofiber/fiber/v2"
)

// loadRule resolves :ruleId and checks the caller against the rule's chat.
func (s *Server) loadRule(c *fiber.Ctx, adminOnly bool) (*models.Rule, error) {
	ruleID, err := s.parseID(c, "ruleId")
	if err != nil {
		return nil, err
	}
	rule, err := s.rt.Rules.Get(c.UserContext(), ruleID)
	if err != nil {
		_ = respondErr(c, err)
		return nil, errResponseWritten
	}
	c.SetUserContext(middleware.WithChatID(c.UserContext(), rule.ChatID))

	check := s.requireModerator
	if adminOnly {
		check = s.requireAdmin
	}
	if err := check(c, rule.ChatID); err != nil {
		return nil, err
	}
	return rule, nil
}

// GetRule returns one rule.
func (s *Server) GetRule(c *fiber.Ctx) error {
	rule, err := s.loadRule(c, false)
	if err != nil {
		return nil
	}
	return c.JSON(rule)
}

// UpdateRule replaces the text, explanation, type and silence of a rule. Admin only.
func (s *Server) UpdateRule(c *fiber.Ctx) error {
	rule, err := s.loadRule(c, true)
	if err != nil {
		return nil
	}

	req := service.RuleInput{
		RuleText:        rule.RuleText,
		ExplanationText: rule.ExplanationText,
		Type:            string(rule.Type),
		IsSilent:        rule.IsSilent,
	}
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}

	updated, err := s.rt.Rules.Update(c.UserContext(), rule.ID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(updated)
}

// SetRuleActivationRequest switches a rule on or off.
type SetRuleActivationRequest struct {
	Activated bool `json:"activated"`
}

// SetRuleActivation activates or deactivates a rule. Admin only.
func (s *Server) SetRuleActivation(c *fiber.Ctx) error {
	rule, err := s.loadRule(c, true)
	if err != nil {
		return nil
	}

	var req SetRuleActivationRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}

	updated, err := s.rt.Rules.SetActivated(c.UserContext(), rule.ID, req.Activated)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(updated)
}

// GetRuleViolations pages a rule's violations, newest first.
func (s *Server) GetRuleViolations(c *fiber.Ctx) error {
	rule, err := s.loadRule(c, false)
	if err != nil {
		return nil
	}

	page := parsePagination(c, s.config.UIPageSize)
	result, err := s.rt.Query.RuleViolations(c.UserContext(), rule.ID, page.Limit, page.Offset)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(result)
}
