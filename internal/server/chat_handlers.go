package server

import (
	"strings"

	"chatwarden/internal/middleware"
	"chatwarden/internal/models"
	"chatwarden/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyChats lists chats where the caller is an active moderator or admin.
func (s *Server) GetMyChats(c *fiber.Ctx) error {
	chats, err := s.rt.Roster.ChatsForUser(c.UserContext(), callerID(c))
	if err != nil {
		return respondErr(c, err)
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return c.JSON(chats)
}

// GetChat returns one chat with its admins and moderators.
func (s *Server) GetChat(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireModerator(c, chatID); err != nil {
		return nil
	}
	ctx := middleware.WithChatID(c.UserContext(), chatID)

	chat, err := s.rt.Roster.Chat(ctx, chatID)
	if err != nil {
		return respondErr(c, err)
	}
	admins, err := s.rt.Roster.Admins(ctx, chatID)
	if err != nil {
		return respondErr(c, err)
	}
	moderators, err := s.rt.Roster.Moderators(ctx, chatID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"chat":       chat,
		"admins":     admins,
		"moderators": moderators,
	})
}

// GetChatStats returns the dashboard counters of a chat.
func (s *Server) GetChatStats(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireModerator(c, chatID); err != nil {
		return nil
	}

	stats, err := s.rt.Roster.Stats(middleware.WithChatID(c.UserContext(), chatID), chatID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(stats)
}

// GetChatFeatures returns the configured flags and their state for the chat.
func (s *Server) GetChatFeatures(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireModerator(c, chatID); err != nil {
		return nil
	}

	return c.JSON(fiber.Map{
		"raw":       s.rt.Flags.Raw(),
		"evaluated": s.rt.Flags.Snapshot(chatID),
	})
}

// SetChatActivationRequest toggles whether the chat is moderated.
type SetChatActivationRequest struct {
	Activated bool `json:"activated"`
}

// SetChatActivation switches moderation of a chat on or off. Admin only.
func (s *Server) SetChatActivation(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	ctx := middleware.WithChatID(c.UserContext(), chatID)

	ok, err := s.rt.Gate.CanToggleChat(ctx, callerID(c), chatID)
	if err != nil {
		return respondErr(c, err)
	}
	if !ok {
		return respondErr(c, models.NewForbiddenError("You are not an admin of this chat"))
	}

	var req SetChatActivationRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}
	if err := s.rt.Roster.SetChatActivated(ctx, chatID, req.Activated); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"chat_id": chatID, "activated": req.Activated})
}

// GetChatModerators lists the moderator rows of a chat, active or not. Admin only.
func (s *Server) GetChatModerators(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireAdmin(c, chatID); err != nil {
		return nil
	}

	mods, err := s.rt.Roster.Moderators(middleware.WithChatID(c.UserContext(), chatID), chatID)
	if err != nil {
		return respondErr(c, err)
	}
	if mods == nil {
		return c.JSON([]any{})
	}
	return c.JSON(mods)
}

// SetModeratorRequest adds, reactivates or deactivates a moderator.
type SetModeratorRequest struct {
	Activated bool   `json:"activated"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
}

// SetChatModerator upserts the (chat, user) moderator row. Admin only.
func (s *Server) SetChatModerator(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	userID, err := s.parsePlatformID(c, "userId")
	if err != nil {
		return nil
	}
	if userID < 0 {
		return respondErr(c, models.NewValidationError("Invalid user ID"))
	}
	if err := s.requireAdmin(c, chatID); err != nil {
		return nil
	}

	var req SetModeratorRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}

	user := models.User{
		ID:       userID,
		Username: strings.TrimPrefix(strings.TrimSpace(req.Username), "@"),
		FullName: strings.TrimSpace(req.FullName),
	}
	ctx := middleware.WithChatID(c.UserContext(), chatID)
	if err := s.rt.Roster.SetModerator(ctx, chatID, user, req.Activated); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"chat_id": chatID, "user_id": userID, "activated": req.Activated})
}

// GetChatRules lists every rule of the chat with its violation count.
func (s *Server) GetChatRules(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireModerator(c, chatID); err != nil {
		return nil
	}

	rules, err := s.rt.Rules.ListForChat(middleware.WithChatID(c.UserContext(), chatID), chatID)
	if err != nil {
		return respondErr(c, err)
	}
	if rules == nil {
		rules = []models.RuleWithCount{}
	}
	return c.JSON(rules)
}

// CreateRule adds an activated rule to the chat. Admin only.
func (s *Server) CreateRule(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireAdmin(c, chatID); err != nil {
		return nil
	}

	var req service.RuleInput
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, models.NewValidationError("Invalid request body"))
	}

	rule, err := s.rt.Rules.Create(middleware.WithChatID(c.UserContext(), chatID), chatID, req)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// GetChatDecisions pages the decisions taken in a chat. ?moderator_id= narrows
// it to one moderator.
func (s *Server) GetChatDecisions(c *fiber.Ctx) error {
	chatID, err := s.parsePlatformID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.requireModerator(c, chatID); err != nil {
		return nil
	}

	var moderatorID *int64
	if raw := c.Query("moderator_id"); raw != "" {
		id, perr := parseInt64(raw)
		if perr != nil || id <= 0 {
			return respondErr(c, models.NewValidationError("Invalid moderator_id"))
		}
		moderatorID = &id
	}

	page := parsePagination(c, s.config.UIPageSize)
	entries, err := s.rt.Query.ChatDecisions(middleware.WithChatID(c.UserContext(), chatID), chatID, moderatorID, page.Limit, page.Offset)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"items":  entries,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}
