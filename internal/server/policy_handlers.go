package server

import (
	"chatwarden/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyPolicies returns the caller's resolved notification preferences.
func (s *Server) GetMyPolicies(c *fiber.Ctx) error {
	policies, err := s.rt.Policies.Effective(c.UserContext(), callerID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(policies)
}

// SetPolicyRequest turns a notification category on or off.
type SetPolicyRequest struct {
	Enabled bool `json:"enabled"`
}

// SetMyPolicy replaces the caller's preference for one category.
// Only moderators of at least one chat have preferences.
func (s *Server) SetMyPolicy(c *fiber.Ctx) error {
	category, err := models.ParseCategory(c.Params("category"))
	if err != nil {
		return respondErr(c, err)
	}
	var req SetPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}

	ctx := c.UserContext()
	chats, err := s.rt.Roster.ChatsForUser(ctx, callerID(c))
	if err != nil {
		return respondErr(c, err)
	}
	if len(chats) == 0 {
		return respondErr(c, models.NewForbiddenError("You do not moderate any chat"))
	}

	if err := s.rt.Policies.SetCategory(ctx, callerID(c), category, req.Enabled); err != nil {
		return respondErr(c, err)
	}
	policies, err := s.rt.Policies.Effective(ctx, callerID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(policies)
}

// CatchUp delivers every violation of ?type= the caller has not seen yet and
// returns what was sent. Deliveries made before a transport failure stay made.
func (s *Server) CatchUp(c *fiber.Ctx) error {
	ruleType, err := models.ParseRuleType(c.Query("type"))
	if err != nil {
		return respondErr(c, err)
	}

	deliveries, err := s.rt.Router.CatchUp(c.UserContext(), callerID(c), ruleType)
	if err != nil && len(deliveries) == 0 {
		return respondErr(c, err)
	}
	if err != nil {
		status := models.StatusForError(err)
		return c.Status(status).JSON(fiber.Map{
			"error":     "catch-up stopped early",
			"delivered": len(deliveries),
		})
	}
	return c.JSON(fiber.Map{
		"delivered": len(deliveries),
		"items":     deliveries,
	})
}
