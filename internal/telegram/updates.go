package telegram

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageSink is the ingestion entry point.
type MessageSink interface {
	OnMessage(ctx context.Context, source string, in service.InboundMessage) (*service.DetectResult, error)
}

// ChatRegistry keeps chats and their admins in step with what Telegram reports.
type ChatRegistry interface {
	Chat(ctx context.Context, chatID int64) (*models.Chat, error)
	UpsertChat(ctx context.Context, in service.ChatInput) (*models.Chat, error)
	UpdateRights(ctx context.Context, chatID int64, canRead, canRestrict, isBotIn bool) error
	SetAdmin(ctx context.Context, chatID int64, user models.User, activated bool) error
}

// Updates turns polled updates into pipeline calls and roster changes.
type Updates struct {
	sink     MessageSink
	registry ChatRegistry
	logger   *slog.Logger
}

// NewUpdates returns the update handler.
func NewUpdates(sink MessageSink, registry ChatRegistry, logger *slog.Logger) *Updates {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updates{sink: sink, registry: registry, logger: logger}
}

// Handle is an UpdateHandler.
func (u *Updates) Handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.MyChatMember != nil:
		if err := u.onMembership(ctx, update.MyChatMember); err != nil {
			u.logger.ErrorContext(ctx, "telegram membership update failed",
				slog.Int64("chat_id", update.MyChatMember.Chat.ID),
				slog.String("error", err.Error()),
			)
		}
	case update.Message != nil:
		u.onMessage(ctx, update.Message)
	case update.EditedMessage != nil:
		u.onMessage(ctx, update.EditedMessage)
	}
}

func (u *Updates) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	in, ok := InboundFromMessage(msg)
	if !ok {
		return
	}
	res, err := u.sink.OnMessage(ctx, service.SourceTelegram, in)
	if err != nil {
		u.logger.ErrorContext(ctx, "telegram message not processed",
			slog.Int64("chat_id", in.ChatID),
			slog.Int("post_id", msg.MessageID),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(res.Violations) > 0 {
		u.logger.InfoContext(ctx, "violations recorded",
			slog.Int64("chat_id", in.ChatID),
			slog.Int("count", len(res.Violations)),
		)
	}
}

// onMembership records the bot being added, promoted, restricted or removed.
// A new chat starts deactivated; the user who added the bot becomes its admin.
func (u *Updates) onMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) error {
	if !isGroup(&upd.Chat) {
		return nil
	}
	in := ChatInputFromMember(upd)

	_, err := u.registry.Chat(ctx, in.ID)
	switch {
	case models.HasCode(err, models.CodeNotFound):
		if !in.IsBotIn {
			return nil
		}
		if _, err := u.registry.UpsertChat(ctx, in); err != nil {
			return err
		}
		if upd.From.ID != 0 && !upd.From.IsBot {
			return u.registry.SetAdmin(ctx, in.ID, userFrom(&upd.From), true)
		}
		return nil
	case err != nil:
		return err
	}
	return u.registry.UpdateRights(ctx, in.ID, in.CanReadMessages, in.CanRestrictMembers, in.IsBotIn)
}

// InboundFromMessage maps a group message. Private chats, bots and service
// messages without text are ignored.
func InboundFromMessage(msg *tgbotapi.Message) (service.InboundMessage, bool) {
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot || !isGroup(msg.Chat) {
		return service.InboundMessage{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return service.InboundMessage{}, false
	}

	user := userFrom(msg.From)
	ts := time.Unix(int64(msg.Date), 0).UTC()
	if msg.EditDate != 0 {
		ts = time.Unix(int64(msg.EditDate), 0).UTC()
	}
	return service.InboundMessage{
		ChatID:     msg.Chat.ID,
		ViolatorID: user.ID,
		Username:   user.Username,
		FullName:   user.FullName,
		Text:       text,
		Timestamp:  ts,
		PostID:     int64(msg.MessageID),
	}, true
}

// ChatInputFromMember derives the bot's capabilities from its new membership.
// Without admin rights privacy mode hides ordinary messages from the bot.
func ChatInputFromMember(upd *tgbotapi.ChatMemberUpdated) service.ChatInput {
	member := upd.NewChatMember
	isAdmin := member.Status == "administrator" || member.Status == "creator"
	in := service.ChatInput{
		ID:    upd.Chat.ID,
		Title: upd.Chat.Title,
	}
	switch member.Status {
	case "member", "administrator", "creator", "restricted":
		in.IsBotIn = true
	}
	in.CanReadMessages = isAdmin
	in.CanRestrictMembers = isAdmin && (member.Status == "creator" || member.CanRestrictMembers)
	return in
}

func isGroup(chat *tgbotapi.Chat) bool {
	return chat.Type == "group" || chat.Type == "supergroup"
}

func userFrom(u *tgbotapi.User) models.User {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	return models.User{ID: u.ID, Username: u.UserName, FullName: name}
}
