package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatwarden/internal/models"
	"chatwarden/internal/notifications"
	"chatwarden/internal/observability"
	"chatwarden/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Delivery is one notice the router decided to send.
type Delivery struct {
	ModeratorID int64                 `json:"moderator_id"`
	Payload     notifications.Payload `json:"payload"`
}

// Dispatcher is the queueing side of notification delivery.
type Dispatcher interface {
	Enqueue(job notifications.Job) error
	Deliver(ctx context.Context, job notifications.Job) error
}

// Router picks the moderators to notify about a violation and hands the
// deliveries to the dispatcher. It never waits on the transport.
type Router struct {
	roster     repository.RosterRepository
	policies   repository.PolicyRepository
	lastSeen   repository.LastSeenRepository
	violations repository.ViolationRepository
	rules      repository.RuleRepository
	dispatcher Dispatcher
	defaults   models.PolicyDefaults
}

// NewRouter returns a new Router.
func NewRouter(
	roster repository.RosterRepository,
	policies repository.PolicyRepository,
	lastSeen repository.LastSeenRepository,
	violations repository.ViolationRepository,
	rules repository.RuleRepository,
	dispatcher Dispatcher,
	defaults models.PolicyDefaults,
) *Router {
	return &Router{
		roster:     roster,
		policies:   policies,
		lastSeen:   lastSeen,
		violations: violations,
		rules:      rules,
		dispatcher: dispatcher,
		defaults:   defaults,
	}
}

// Route computes the deliveries for a fresh violation and enqueues them.
// OBSERVE and silent rules produce nothing, and so does a deactivated chat,
// matching the ingestion gate in Pipeline.OnMessage. A moderator is skipped when their
// effective policy says not to notify or their marker is already at or past
// the violation's detected_at.
func (r *Router) Route(ctx context.Context, violation models.RuleViolation, rule models.Rule, chat models.Chat) ([]Delivery, error) {
	category, notifiable := rule.Type.Category()
	if !notifiable || rule.IsSilent || !chat.Activated {
		return nil, nil
	}

	span, ctx := observability.NewSpan(ctx, "router.route",
		attribute.Int64("violation_id", int64(violation.ID)),
		attribute.Int64("rule_id", int64(rule.ID)),
	)
	defer span.End()

	moderatorIDs, err := r.roster.ActiveModeratorIDs(ctx, rule.ChatID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(moderatorIDs) == 0 {
		return nil, nil
	}

	policyRows, err := r.policies.ListForModerators(ctx, moderatorIDs)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	markers, err := r.lastSeen.GetMany(ctx, rule.ID, moderatorIDs)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	eligible := make([]int64, 0, len(moderatorIDs))
	for _, moderatorID := range moderatorIDs {
		state := models.ResolvePolicy(policyRows[moderatorID], category)
		if !r.defaults.ShouldNotify(state) {
			observability.NotificationsTotal.WithLabelValues(string(category), "suppressed").Inc()
			continue
		}
		if seen, ok := markers[moderatorID]; ok && !seen.Before(violation.DetectedAt) {
			observability.NotificationsTotal.WithLabelValues(string(category), "stale").Inc()
			continue
		}
		eligible = append(eligible, moderatorID)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	payload, err := r.payload(ctx, violation, rule, chat, category)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(eligible))
	for _, moderatorID := range eligible {
		job := notifications.Job{
			ModeratorID: moderatorID,
			RuleID:      rule.ID,
			DetectedAt:  violation.DetectedAt,
			Payload:     payload,
		}
		if err := r.dispatcher.Enqueue(job); err != nil {
			// The marker stays put, so catch-up still delivers this one.
			observability.L().WarnContext(ctx, "delivery not queued",
				slog.Int64("moderator_id", moderatorID),
				slog.Uint64("violation_id", uint64(violation.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		deliveries = append(deliveries, Delivery{ModeratorID: moderatorID, Payload: payload})
	}
	span.AddAttributes(attribute.Int("deliveries", len(deliveries)))
	return deliveries, nil
}

// CatchUp delivers, oldest first, every violation of ruleType newer than the
// caller's marker. BAN and NOTIFY cover the chats they moderate; OBSERVE covers
// the chats they administer. Deactivated rules are included. It is an explicit
// pull, so policy and silence do not apply. Delivery stops at the first failure
// per rule so the marker never jumps over an undelivered violation.
func (r *Router) CatchUp(ctx context.Context, moderatorID int64, ruleType models.RuleType) ([]Delivery, error) {
	category, _ := ruleType.Category()

	var (
		chatIDs []int64
		err     error
	)
	if ruleType == models.RuleTypeObserve {
		chatIDs, err = r.roster.AdministeredChatIDs(ctx, moderatorID)
		if err == nil && len(chatIDs) == 0 {
			return nil, models.NewForbiddenError("observe violations are only available to chat admins")
		}
	} else {
		chatIDs, err = r.roster.ModeratedChatIDs(ctx, moderatorID)
	}
	if err != nil {
		return nil, err
	}
	rules, err := r.rules.ForChatsByType(ctx, chatIDs, ruleType)
	if err != nil {
		return nil, err
	}

	var (
		delivered []Delivery
		errs      []error
	)
	for _, rule := range rules {
		seen, found, err := r.lastSeen.Get(ctx, moderatorID, rule.ID)
		if err != nil {
			return delivered, err
		}
		var since *time.Time
		if found {
			since = &seen
		}
		pending, err := r.violations.ListByRuleSince(ctx, rule.ID, since)
		if err != nil {
			return delivered, err
		}

		for _, v := range pending {
			payload, err := r.payload(ctx, v, rule, models.Chat{ID: rule.ChatID}, category)
			if err != nil {
				return delivered, err
			}
			job := notifications.Job{ModeratorID: moderatorID, RuleID: rule.ID, DetectedAt: v.DetectedAt, Payload: payload}
			if err := r.dispatcher.Deliver(ctx, job); err != nil {
				errs = append(errs, err)
				break
			}
			delivered = append(delivered, Delivery{ModeratorID: moderatorID, Payload: payload})
		}
	}
	return delivered, errors.Join(errs...)
}

func (r *Router) payload(ctx context.Context, v models.RuleViolation, rule models.Rule, chat models.Chat, category models.NotificationCategory) (notifications.Payload, error) {
	detail, err := r.violations.GetDetail(ctx, v.ID)
	if err != nil {
		return notifications.Payload{}, err
	}
	return notifications.Payload{
		Type:            notifications.PayloadTypeViolation,
		ViolationID:     v.ID,
		RuleID:          rule.ID,
		ChatID:          rule.ChatID,
		ChatTitle:       chat.Title,
		RuleType:        rule.Type,
		Category:        category,
		RuleText:        rule.RuleText,
		ExplanationText: rule.ExplanationText,
		MessageText:     detail.MessageText,
		PostID:          detail.PostID,
		ViolatorID:      detail.ViolatorID,
		Username:        detail.Username,
		FullName:        detail.FullName,
		DetectedAt:      v.DetectedAt,
	}, nil
}
