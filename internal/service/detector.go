package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatwarden/internal/matcher"
	"chatwarden/internal/models"
	"chatwarden/internal/observability"
	"chatwarden/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// Warning is a non-fatal per-rule problem found during detection.
type Warning struct {
	RuleID  uint   `json:"rule_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DetectResult is what one message produced. Violations[i] matched Matched[i].
type DetectResult struct {
	Message    *models.ViolatorMessage `json:"message,omitempty"`
	Violations []models.RuleViolation  `json:"violations"`
	Matched    []models.Rule           `json:"-"`
	Warnings   []Warning               `json:"warnings,omitempty"`
	Skipped    string                  `json:"skipped,omitempty"`
}

// Detector evaluates a chat's active rules against a message and records matches.
type Detector struct {
	violations repository.ViolationRepository
	matcher    matcher.Matcher
	now        func() time.Time
}

// NewDetector returns a new Detector.
func NewDetector(violations repository.ViolationRepository, m matcher.Matcher) *Detector {
	return &Detector{violations: violations, matcher: m, now: utcNow}
}

// Detect stores msg and one violation per matching rule in a single transaction.
// Rules that are inactive or belong to another chat are skipped with a warning.
// A rule whose matcher fails counts as no match and is reported as a warning.
func (d *Detector) Detect(ctx context.Context, msg *models.ViolatorMessage, rules []models.Rule) (*DetectResult, error) {
	span, ctx := observability.NewSpan(ctx, "detector.detect",
		attribute.Int64("chat_id", msg.ChatID),
		attribute.Int("rules", len(rules)),
	)
	defer span.End()

	res := &DetectResult{}
	matchedIDs := make([]uint, 0, len(rules))

	for _, rule := range rules {
		if !rule.Activated || rule.ChatID != msg.ChatID {
			res.Warnings = append(res.Warnings, Warning{
				RuleID:  rule.ID,
				Code:    models.CodeValidation,
				Message: fmt.Sprintf("rule %d is not active in chat %d", rule.ID, msg.ChatID),
			})
			continue
		}

		ok, err := d.matcher.Matches(rule.RuleText, msg.Text)
		if err != nil {
			observability.MatcherErrors.Inc()
			appErr := models.NewMatcherError(rule.ID, err)
			observability.L().WarnContext(ctx, "rule evaluation failed",
				slog.Uint64("rule_id", uint64(rule.ID)),
				slog.String("error", err.Error()),
			)
			res.Warnings = append(res.Warnings, Warning{RuleID: rule.ID, Code: appErr.Code, Message: appErr.Error()})
			continue
		}
		if ok {
			matchedIDs = append(matchedIDs, rule.ID)
			res.Matched = append(res.Matched, rule)
		}
	}

	msg.Timestamp = msg.Timestamp.UTC()
	violations, err := d.violations.RecordDetection(ctx, msg, matchedIDs, d.now())
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	res.Message = msg
	res.Violations = violations
	for _, rule := range res.Matched {
		observability.ViolationsDetected.WithLabelValues(string(rule.Type)).Inc()
	}
	span.AddAttributes(
		attribute.Int("violations", len(violations)),
		attribute.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
