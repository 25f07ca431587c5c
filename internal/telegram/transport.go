package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"chatwarden/internal/notifications"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// Transport delivers violation notices as direct messages. A moderator must
// have started a conversation with the bot before it can write to them.
type Transport struct {
	client *Client
}

// NewTransport returns a Transport over client.
func NewTransport(client *Client) *Transport {
	return &Transport{client: client}
}

// Send implements notifications.Transport.
func (t *Transport) Send(ctx context.Context, moderatorID int64, payload notifications.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.client.DryRun() {
		t.client.logger.InfoContext(ctx, "dry run: notice",
			slog.Int64("moderator_id", moderatorID),
			slog.Uint64("violation_id", uint64(payload.ViolationID)),
		)
	}
	msg := tgbotapi.NewMessage(moderatorID, FormatNotice(payload))
	msg.DisableWebPagePreview = true
	if err := t.client.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", moderatorID, err)
	}
	return nil
}

// FormatNotice renders a payload as plain text.
func FormatNotice(p notifications.Payload) string {
	var b strings.Builder

	chat := p.ChatTitle
	if chat == "" {
		chat = fmt.Sprintf("chat %d", p.ChatID)
	}
	fmt.Fprintf(&b, "Violation #%d in %s\n", p.ViolationID, chat)
	fmt.Fprintf(&b, "Rule #%d (%s): %s\n", p.RuleID, p.RuleType, p.RuleText)
	if p.ExplanationText != "" {
		fmt.Fprintf(&b, "Why: %s\n", p.ExplanationText)
	}

	who := p.FullName
	if p.Username != "" {
		if who != "" {
			who += " "
		}
		who += "@" + p.Username
	}
	if who == "" {
		who = "unknown user"
	}
	fmt.Fprintf(&b, "User: %s (id %d)\n", who, p.ViolatorID)
	fmt.Fprintf(&b, "Detected: %s\n", p.DetectedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	b.WriteString("Message:\n")
	b.WriteString(p.MessageText)

	out := b.String()
	if len(out) > maxMessageLen {
		out = truncateRunes(out, maxMessageLen-3) + "..."
	}
	return out
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
