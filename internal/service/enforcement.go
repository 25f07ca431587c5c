package service

import (
	"context"
	"log/slog"

	"chatwarden/internal/featureflags"
	"chatwarden/internal/models"
	"chatwarden/internal/observability"
	"chatwarden/internal/repository"
)

// Enforcer applies bans in the chat platform.
type Enforcer interface {
	Ban(ctx context.Context, chatID, userID int64) error
	Unban(ctx context.Context, chatID, userID int64) error
}

// Enforcement gates platform actions on the auto_enforce flag and on the
// chat's can_restrict_members capability.
type Enforcement struct {
	enforcer Enforcer
	chats    repository.ChatRepository
	flags    *featureflags.Manager
}

// NewEnforcement returns a new Enforcement. A nil enforcer disables it.
func NewEnforcement(enforcer Enforcer, chats repository.ChatRepository, flags *featureflags.Manager) *Enforcement {
	return &Enforcement{enforcer: enforcer, chats: chats, flags: flags}
}

// Apply carries decision out for userID in chatID. It reports whether a
// platform call was made.
func (e *Enforcement) Apply(ctx context.Context, chatID, userID int64, decision models.Decision) (bool, error) {
	if e == nil || e.enforcer == nil || !e.flags.Enabled(featureflags.AutoEnforce, chatID) {
		return false, nil
	}
	action := "ban"
	if decision == models.DecisionUnban {
		action = "unban"
	}

	chat, err := e.chats.GetByID(ctx, chatID)
	if err != nil {
		return false, err
	}
	if !chat.CanRestrictMembers {
		observability.EnforcementActions.WithLabelValues(action, "no_rights").Inc()
		observability.L().InfoContext(ctx, "skipping enforcement, bot cannot restrict members",
			slog.Int64("chat_id", chatID), slog.String("action", action))
		return false, nil
	}

	if decision == models.DecisionUnban {
		err = e.enforcer.Unban(ctx, chatID, userID)
	} else {
		err = e.enforcer.Ban(ctx, chatID, userID)
	}
	if err != nil {
		observability.EnforcementActions.WithLabelValues(action, "error").Inc()
		return false, models.NewTransportError(userID, err)
	}
	observability.EnforcementActions.WithLabelValues(action, "ok").Inc()
	return true, nil
}
