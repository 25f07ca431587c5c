package service

import (
	"context"
	"strings"

	"chatwarden/internal/models"
	"chatwarden/internal/repository"
)

const maxSearchResults = 100

// ViolationView is a violation with its derived status and decision log.
type ViolationView struct {
	models.ViolationDetail
	Status  models.Status                  `json:"status"`
	History []models.RuleViolationDecision `json:"history"`
}

// ViolationPage is one page of a rule's violations.
type ViolationPage struct {
	Items  []models.ViolationDetail `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// QueryService serves the read side of the moderation dashboard.
type QueryService struct {
	violations repository.ViolationRepository
	decisions  repository.DecisionRepository
	chats      repository.ChatRepository
	ledger     *Ledger
}

// NewQueryService returns a new QueryService.
func NewQueryService(
	violations repository.ViolationRepository,
	decisions repository.DecisionRepository,
	chats repository.ChatRepository,
	ledger *Ledger,
) *QueryService {
	return &QueryService{violations: violations, decisions: decisions, chats: chats, ledger: ledger}
}

// RuleViolations pages a rule's violations, newest first.
func (s *QueryService) RuleViolations(ctx context.Context, ruleID uint, limit, offset int) (*ViolationPage, error) {
	items, total, err := s.violations.ListByRule(ctx, ruleID, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.ViolationDetail{}
	}
	return &ViolationPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Violation returns the detail of one violation with its status and history.
func (s *QueryService) Violation(ctx context.Context, violationID uint) (*ViolationView, error) {
	detail, err := s.violations.GetDetail(ctx, violationID)
	if err != nil {
		return nil, err
	}
	history, err := s.ledger.History(ctx, violationID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.RuleViolationDecision{}
	}
	return &ViolationView{ViolationDetail: *detail, Status: models.FoldStatus(history), History: history}, nil
}

// ChatOf returns the chat a violation belongs to, for access checks.
func (s *QueryService) ChatOf(ctx context.Context, violationID uint) (int64, error) {
	detail, err := s.violations.GetDetail(ctx, violationID)
	if err != nil {
		return 0, err
	}
	return detail.ChatID, nil
}

// Search looks for violators by username, full name or message text within the
// chats the user moderates or administers.
func (s *QueryService) Search(ctx context.Context, userID int64, query string, limit int) ([]models.ViolationDetail, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("q is required")
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	chatIDs := make([]int64, 0, len(chats))
	for _, c := range chats {
		chatIDs = append(chatIDs, c.ID)
	}
	out, err := s.violations.Search(ctx, chatIDs, query, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.ViolationDetail{}
	}
	return out, nil
}

// ChatDecisions pages decisions taken in a chat, optionally by one moderator.
func (s *QueryService) ChatDecisions(ctx context.Context, chatID int64, moderatorID *int64, limit, offset int) ([]repository.DecisionEntry, error) {
	out, err := s.decisions.ListForChat(ctx, chatID, moderatorID, limit, offset)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []repository.DecisionEntry{}
	}
	return out, nil
}
