package server

import (
	"chatwarden/internal/middleware"
	"chatwarden/internal/models"

	"github.com/gofiber/fiber/v2"
)

// loadViolationChat resolves :id to its chat and checks the caller moderates
// or administers it.
func (s *Server) loadViolationChat(c *fiber.Ctx) (uint, error) {
	violationID, err := s.parseID(c, "id")
	if err != nil {
		return 0, err
	}
	chatID, err := s.rt.Query.ChatOf(c.UserContext(), violationID)
	if err != nil {
		_ = respondErr(c, err)
		return 0, errResponseWritten
	}
	c.SetUserContext(middleware.WithChatID(c.UserContext(), chatID))
	if err := s.requireModerator(c, chatID); err != nil {
		return 0, err
	}
	return violationID, nil
}

// GetViolation returns a violation with its current status and decision history.
func (s *Server) GetViolation(c *fiber.Ctx) error {
	violationID, err := s.loadViolationChat(c)
	if err != nil {
		return nil
	}

	view, err := s.rt.Query.Violation(c.UserContext(), violationID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(view)
}

// RecordDecisionRequest is a moderator ruling.
type RecordDecisionRequest struct {
	Decision string `json:"decision"`
}

// RecordDecision appends BAN or UNBAN to the violation's ledger and returns
// the resulting status.
func (s *Server) RecordDecision(c *fiber.Ctx) error {
	violationID, err := s.loadViolationChat(c)
	if err != nil {
		return nil
	}

	var req RecordDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}
	decision, err := models.ParseDecision(req.Decision)
	if err != nil {
		return respondErr(c, err)
	}

	ctx := c.UserContext()
	record, err := s.rt.Ledger.RecordDecision(ctx, violationID, callerID(c), decision)
	if err != nil {
		return respondErr(c, err)
	}
	status, err := s.rt.Ledger.CurrentStatus(ctx, violationID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"decision": record,
		"status":   status,
	})
}

// SearchViolations finds violations by violator username, full name or message
// text across the caller's chats.
func (s *Server) SearchViolations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", s.config.UIPageSize)
	results, err := s.rt.Query.Search(c.UserContext(), callerID(c), c.Query("q"), limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(results)
}
