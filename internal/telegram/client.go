// Package telegram connects the engine to the Telegram Bot API: it feeds group
// messages into the pipeline, keeps chat rights in sync, sends moderator DMs and
// bans or unbans violators.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler receives every update the bot polls.
type UpdateHandler func(context.Context, tgbotapi.Update)

// Client wraps the Bot API. With an empty token it runs dry: nothing is polled
// and every outbound call succeeds without leaving the process.
type Client struct {
	api         *tgbotapi.BotAPI
	logger      *slog.Logger
	pollTimeout int
	dryRun      bool
}

// NewClient connects to the Bot API, or returns a dry-run client when token is empty.
func NewClient(token string, pollTimeout int, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(token) == "" {
		return &Client{logger: logger, pollTimeout: pollTimeout, dryRun: true}, nil
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}

	return &Client{api: api, logger: logger, pollTimeout: pollTimeout}, nil
}

// DryRun reports whether the client talks to Telegram at all.
func (c *Client) DryRun() bool {
	return c.dryRun
}

// Start long-polls updates until ctx is done.
func (c *Client) Start(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return errors.New("telegram update handler is required")
	}
	if c.dryRun {
		c.logger.Warn("TELEGRAM_BOT_TOKEN is empty, running in dry mode")
		<-ctx.Done()
		return nil
	}

	timeout := c.pollTimeout
	if timeout <= 0 {
		timeout = 30
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = timeout
	updateConfig.AllowedUpdates = []string{"message", "edited_message", "my_chat_member"}
	updates := c.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			handler(ctx, update)
		}
	}
}

// Send delivers a message-like request.
func (c *Client) Send(msg tgbotapi.Chattable) error {
	if c.dryRun {
		return nil
	}
	_, err := c.api.Send(msg)
	return err
}

// Request performs a call whose result is not a message, such as a ban.
func (c *Client) Request(req tgbotapi.Chattable) error {
	if c.dryRun {
		return nil
	}
	_, err := c.api.Request(req)
	return err
}
