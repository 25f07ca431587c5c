// Package service holds the moderation engine: detection, routing, the decision
// ledger, access control and the management use cases built on them.
package service

import (
	"context"

	"chatwarden/internal/models"
	"chatwarden/internal/repository"
)

// AccessGate answers whether a user may act on a chat. Admin and moderator
// standings are independent; neither implies the other.
type AccessGate struct {
	roster repository.RosterRepository
}

// NewAccessGate returns a new AccessGate.
func NewAccessGate(roster repository.RosterRepository) *AccessGate {
	return &AccessGate{roster: roster}
}

// CanModerate is true for an activated moderator row in an activated chat.
func (g *AccessGate) CanModerate(ctx context.Context, userID, chatID int64) (bool, error) {
	return g.roster.IsActiveModerator(ctx, userID, chatID)
}

// CanAdminister is true for an activated admin row in an activated chat.
func (g *AccessGate) CanAdminister(ctx context.Context, userID, chatID int64) (bool, error) {
	return g.roster.IsActiveAdmin(ctx, userID, chatID)
}

// CanToggleChat is true for an activated admin row whatever the chat's state.
func (g *AccessGate) CanToggleChat(ctx context.Context, userID, chatID int64) (bool, error) {
	return g.roster.HasAdminRow(ctx, userID, chatID)
}

// CanModerateOrAdminister is the precondition for reading and deciding on a chat's violations.
func (g *AccessGate) CanModerateOrAdminister(ctx context.Context, userID, chatID int64) (bool, error) {
	ok, err := g.CanModerate(ctx, userID, chatID)
	if err != nil || ok {
		return ok, err
	}
	return g.CanAdminister(ctx, userID, chatID)
}

// RequireAdminister returns FORBIDDEN unless CanAdminister holds.
func (g *AccessGate) RequireAdminister(ctx context.Context, userID, chatID int64) error {
	ok, err := g.CanAdminister(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("You are not an admin of this chat")
	}
	return nil
}

// RequireModerateOrAdminister returns FORBIDDEN unless CanModerateOrAdminister holds.
func (g *AccessGate) RequireModerateOrAdminister(ctx context.Context, userID, chatID int64) error {
	ok, err := g.CanModerateOrAdminister(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("You do not moderate this chat")
	}
	return nil
}
