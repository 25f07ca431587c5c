package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/notifications"
	"chatwarden/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 77,
		Date:      1767261600,
		Chat:      &tgbotapi.Chat{ID: -1001, Type: "supergroup", Title: "Test Group"},
		From:      &tgbotapi.User{ID: 42, UserName: "spammer", FirstName: "Sam", LastName: "Pam"},
		Text:      text,
	}
}

func TestInboundFromMessage(t *testing.T) {
	in, ok := InboundFromMessage(groupMessage("buy now"))
	require.True(t, ok)
	assert.Equal(t, service.InboundMessage{
		ChatID:     -1001,
		ViolatorID: 42,
		Username:   "spammer",
		FullName:   "Sam Pam",
		Text:       "buy now",
		Timestamp:  time.Unix(1767261600, 0).UTC(),
		PostID:     77,
	}, in)

	t.Run("caption is used when there is no text", func(t *testing.T) {
		msg := groupMessage("")
		msg.Caption = "photo spam"
		in, ok := InboundFromMessage(msg)
		require.True(t, ok)
		assert.Equal(t, "photo spam", in.Text)
	})

	t.Run("edits use the edit time", func(t *testing.T) {
		msg := groupMessage("edited")
		msg.EditDate = 1767261700
		in, ok := InboundFromMessage(msg)
		require.True(t, ok)
		assert.Equal(t, time.Unix(1767261700, 0).UTC(), in.Timestamp)
	})

	ignored := map[string]func(*tgbotapi.Message){
		"private chat": func(m *tgbotapi.Message) { m.Chat.Type = "private" },
		"bot author":   func(m *tgbotapi.Message) { m.From.IsBot = true },
		"no sender":    func(m *tgbotapi.Message) { m.From = nil },
		"no text":      func(m *tgbotapi.Message) { m.Text = "" },
	}
	for name, mutate := range ignored {
		t.Run(name, func(t *testing.T) {
			msg := groupMessage("x")
			mutate(msg)
			_, ok := InboundFromMessage(msg)
			assert.False(t, ok)
		})
	}
}

func TestChatInputFromMember(t *testing.T) {
	tests := []struct {
		name   string
		member tgbotapi.ChatMember
		want   service.ChatInput
	}{
		{
			"plain member",
			tgbotapi.ChatMember{Status: "member"},
			service.ChatInput{ID: -1001, Title: "Test Group", IsBotIn: true},
		},
		{
			"admin with restrict rights",
			tgbotapi.ChatMember{Status: "administrator", CanRestrictMembers: true},
			service.ChatInput{ID: -1001, Title: "Test Group", IsBotIn: true, CanReadMessages: true, CanRestrictMembers: true},
		},
		{
			"admin without restrict rights",
			tgbotapi.ChatMember{Status: "administrator"},
			service.ChatInput{ID: -1001, Title: "Test Group", IsBotIn: true, CanReadMessages: true},
		},
		{
			"kicked",
			tgbotapi.ChatMember{Status: "kicked"},
			service.ChatInput{ID: -1001, Title: "Test Group"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd := &tgbotapi.ChatMemberUpdated{
				Chat:          tgbotapi.Chat{ID: -1001, Type: "supergroup", Title: "Test Group"},
				NewChatMember: tt.member,
			}
			assert.Equal(t, tt.want, ChatInputFromMember(upd))
		})
	}
}

func TestFormatNotice(t *testing.T) {
	p := notifications.Payload{
		ViolationID:     9,
		RuleID:          3,
		ChatID:          -1001,
		RuleType:        models.RuleTypeBan,
		RuleText:        "casino",
		ExplanationText: "gambling ads",
		MessageText:     "best casino here",
		ViolatorID:      42,
		Username:        "spammer",
		FullName:        "Sam Pam",
		DetectedAt:      time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	text := FormatNotice(p)
	assert.Contains(t, text, "Violation #9 in chat -1001")
	assert.Contains(t, text, "Rule #3 (BAN): casino")
	assert.Contains(t, text, "Why: gambling ads")
	assert.Contains(t, text, "User: Sam Pam @spammer (id 42)")
	assert.True(t, strings.HasSuffix(text, "best casino here"))

	p.MessageText = strings.Repeat("я", maxMessageLen)
	long := FormatNotice(p)
	assert.LessOrEqual(t, len(long), maxMessageLen)
	assert.True(t, strings.HasSuffix(long, "..."))
}

type sinkCall struct {
	source string
	in     service.InboundMessage
}

type fakeSink struct {
	calls []sinkCall
	err   error
}

func (f *fakeSink) OnMessage(_ context.Context, source string, in service.InboundMessage) (*service.DetectResult, error) {
	f.calls = append(f.calls, sinkCall{source, in})
	if f.err != nil {
		return nil, f.err
	}
	return &service.DetectResult{}, nil
}

type fakeRegistry struct {
	chats   map[int64]*models.Chat
	rights  []service.ChatInput
	admins  []models.User
	upserts []service.ChatInput
}

func (f *fakeRegistry) Chat(_ context.Context, chatID int64) (*models.Chat, error) {
	if c, ok := f.chats[chatID]; ok {
		return c, nil
	}
	return nil, models.NewNotFoundError("Chat", chatID)
}

func (f *fakeRegistry) UpsertChat(_ context.Context, in service.ChatInput) (*models.Chat, error) {
	f.upserts = append(f.upserts, in)
	c := &models.Chat{ID: in.ID, Title: in.Title}
	f.chats[in.ID] = c
	return c, nil
}

func (f *fakeRegistry) UpdateRights(_ context.Context, chatID int64, canRead, canRestrict, isBotIn bool) error {
	f.rights = append(f.rights, service.ChatInput{ID: chatID, CanReadMessages: canRead, CanRestrictMembers: canRestrict, IsBotIn: isBotIn})
	return nil
}

func (f *fakeRegistry) SetAdmin(_ context.Context, _ int64, user models.User, _ bool) error {
	f.admins = append(f.admins, user)
	return nil
}

func TestUpdates_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("group messages reach the pipeline", func(t *testing.T) {
		sink := &fakeSink{}
		u := NewUpdates(sink, &fakeRegistry{chats: map[int64]*models.Chat{}}, nil)
		u.Handle(ctx, tgbotapi.Update{Message: groupMessage("hello")})
		u.Handle(ctx, tgbotapi.Update{EditedMessage: groupMessage("hello again")})

		require.Len(t, sink.calls, 2)
		assert.Equal(t, service.SourceTelegram, sink.calls[0].source)
		assert.Equal(t, "hello again", sink.calls[1].in.Text)
	})

	t.Run("pipeline errors are swallowed", func(t *testing.T) {
		sink := &fakeSink{err: errors.New("db down")}
		u := NewUpdates(sink, &fakeRegistry{chats: map[int64]*models.Chat{}}, nil)
		assert.NotPanics(t, func() { u.Handle(ctx, tgbotapi.Update{Message: groupMessage("hello")}) })
	})

	t.Run("bot added to a new chat", func(t *testing.T) {
		reg := &fakeRegistry{chats: map[int64]*models.Chat{}}
		u := NewUpdates(&fakeSink{}, reg, nil)
		u.Handle(ctx, tgbotapi.Update{MyChatMember: &tgbotapi.ChatMemberUpdated{
			Chat:          tgbotapi.Chat{ID: -1001, Type: "group", Title: "New"},
			From:          tgbotapi.User{ID: 7, UserName: "owner", FirstName: "Olga"},
			NewChatMember: tgbotapi.ChatMember{Status: "member"},
		}})

		require.Len(t, reg.upserts, 1)
		assert.False(t, reg.upserts[0].Activated)
		require.Len(t, reg.admins, 1)
		assert.Equal(t, models.User{ID: 7, Username: "owner", FullName: "Olga"}, reg.admins[0])
	})

	t.Run("known chat gets its rights refreshed", func(t *testing.T) {
		reg := &fakeRegistry{chats: map[int64]*models.Chat{-1001: {ID: -1001}}}
		u := NewUpdates(&fakeSink{}, reg, nil)
		u.Handle(ctx, tgbotapi.Update{MyChatMember: &tgbotapi.ChatMemberUpdated{
			Chat:          tgbotapi.Chat{ID: -1001, Type: "supergroup"},
			NewChatMember: tgbotapi.ChatMember{Status: "left"},
		}})

		assert.Empty(t, reg.upserts)
		require.Len(t, reg.rights, 1)
		assert.False(t, reg.rights[0].IsBotIn)
	})
}

func TestDryRunClient(t *testing.T) {
	client, err := NewClient("  ", 0, nil)
	require.NoError(t, err)
	assert.True(t, client.DryRun())

	ctx := context.Background()
	assert.NoError(t, NewTransport(client).Send(ctx, 5, notifications.Payload{RuleText: "x"}))
	assert.NoError(t, NewEnforcer(client).Ban(ctx, -1001, 42))
	assert.NoError(t, NewEnforcer(client).Unban(ctx, -1001, 42))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, NewEnforcer(client).Ban(cancelled, -1001, 42), context.Canceled)
	assert.NoError(t, client.Start(cancelled, func(context.Context, tgbotapi.Update) {}))
	assert.Error(t, client.Start(cancelled, nil))
}
