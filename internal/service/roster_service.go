package service

import (
	"context"
	"strings"

	"chatwarden/internal/models"
	"chatwarden/internal/repository"
)

// ChatInput registers or refreshes a chat the bot was added to.
type ChatInput struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	Activated          bool   `json:"activated"`
	CanReadMessages    bool   `json:"can_read_messages"`
	CanRestrictMembers bool   `json:"can_restrict_members"`
	IsBotIn            bool   `json:"is_bot_in"`
}

// RosterService manages chats and their admin and moderator rows.
type RosterService struct {
	chats  repository.ChatRepository
	users  repository.UserRepository
	roster repository.RosterRepository
}

// NewRosterService returns a new RosterService.
func NewRosterService(chats repository.ChatRepository, users repository.UserRepository, roster repository.RosterRepository) *RosterService {
	return &RosterService{chats: chats, users: users, roster: roster}
}

// UpsertChat creates or refreshes a chat.
func (s *RosterService) UpsertChat(ctx context.Context, in ChatInput) (*models.Chat, error) {
	if in.ID == 0 {
		return nil, models.NewValidationError("chat id is required")
	}
	chat := &models.Chat{
		ID:                 in.ID,
		Title:              strings.TrimSpace(in.Title),
		Activated:          in.Activated,
		CanReadMessages:    in.CanReadMessages,
		CanRestrictMembers: in.CanRestrictMembers,
		IsBotIn:            in.IsBotIn,
	}
	if err := s.chats.Upsert(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// SetChatActivated puts a chat under moderation or takes it out.
func (s *RosterService) SetChatActivated(ctx context.Context, chatID int64, activated bool) error {
	return s.chats.SetActivated(ctx, chatID, activated)
}

// UpdateRights records the capabilities the platform granted the bot.
func (s *RosterService) UpdateRights(ctx context.Context, chatID int64, canRead, canRestrict, isBotIn bool) error {
	return s.chats.UpdateRights(ctx, chatID, canRead, canRestrict, isBotIn)
}

// SetAdmin adds, reactivates or deactivates an admin. The user row is refreshed first.
func (s *RosterService) SetAdmin(ctx context.Context, chatID int64, user models.User, activated bool) error {
	if err := s.ensureUser(ctx, &user); err != nil {
		return err
	}
	return s.roster.SetAdmin(ctx, chatID, user.ID, activated)
}

// SetModerator adds, reactivates or deactivates a moderator. The user row is refreshed first.
func (s *RosterService) SetModerator(ctx context.Context, chatID int64, user models.User, activated bool) error {
	if err := s.ensureUser(ctx, &user); err != nil {
		return err
	}
	return s.roster.SetModerator(ctx, chatID, user.ID, activated)
}

func (s *RosterService) ensureUser(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return models.NewValidationError("user id is required")
	}
	if user.Username == "" && user.FullName == "" {
		// Keep whatever names are already stored.
		exists, err := s.users.Exists(ctx, user.ID)
		if err != nil || exists {
			return err
		}
	}
	return s.users.Upsert(ctx, user)
}

// Moderators lists a chat's moderator rows.
func (s *RosterService) Moderators(ctx context.Context, chatID int64) ([]repository.RosterEntry, error) {
	return s.roster.ListModerators(ctx, chatID)
}

// Admins lists a chat's admin rows.
func (s *RosterService) Admins(ctx context.Context, chatID int64) ([]repository.RosterEntry, error) {
	return s.roster.ListAdmins(ctx, chatID)
}

// ChatsForUser lists activated chats the user moderates or administers.
func (s *RosterService) ChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	return s.chats.ListForUser(ctx, userID)
}

// Chat returns one chat.
func (s *RosterService) Chat(ctx context.Context, chatID int64) (*models.Chat, error) {
	return s.chats.GetByID(ctx, chatID)
}

// Stats summarises a chat.
func (s *RosterService) Stats(ctx context.Context, chatID int64) (*models.ChatStats, error) {
	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return nil, err
	}
	return s.chats.Stats(ctx, chatID)
}
