package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Enforcer bans and unbans chat members through the Bot API.
type Enforcer struct {
	client *Client
}

// NewEnforcer returns an Enforcer over client.
func NewEnforcer(client *Client) *Enforcer {
	return &Enforcer{client: client}
}

// Ban removes the user from the chat and keeps them out.
func (e *Enforcer) Ban(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	}
	if e.client.DryRun() {
		e.client.logger.InfoContext(ctx, "dry run: ban", slog.Int64("chat_id", chatID), slog.Int64("user_id", userID))
	}
	if err := e.client.Request(req); err != nil {
		return fmt.Errorf("telegram ban %d in %d: %w", userID, chatID, err)
	}
	return nil
}

// Unban lifts a ban. Users who are not banned are left alone.
func (e *Enforcer) Unban(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	}
	if e.client.DryRun() {
		e.client.logger.InfoContext(ctx, "dry run: unban", slog.Int64("chat_id", chatID), slog.Int64("user_id", userID))
	}
	if err := e.client.Request(req); err != nil {
		return fmt.Errorf("telegram unban %d in %d: %w", userID, chatID, err)
	}
	return nil
}
