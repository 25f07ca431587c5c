// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"chatwarden/internal/matcher"
	"chatwarden/internal/models"
	"chatwarden/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// RuleTemplate is a canned rule plus a phrase that trips it.
type RuleTemplate struct {
	Type        models.RuleType
	Text        string
	Explanation string
	Trigger     string
}

// RuleTemplates are realistic spam and abuse rules for demo chats.
var RuleTemplates = []RuleTemplate{
	{models.RuleTypeBan, `(?i)\b(casino|jackpot)\b`, "Gambling advertising", "Best casino bonus today"},
	{models.RuleTypeBan, `(?i)t\.me/\w+`, "Invite links to other chats", "join us at t.me/freegifts"},
	{models.RuleTypeBan, `(?i)\bfree (crypto|btc|usdt)\b`, "Crypto giveaway scams", "free crypto for the first 100 members"},
	{models.RuleTypeNotify, `(?i)\b(idiot|moron)\b`, "Insults", "you are an idiot"},
	{models.RuleTypeNotify, `(?i)\bdm me\b`, "Soliciting private contact", "dm me for details"},
	{models.RuleTypeObserve, `(?i)https?://`, "Links, for statistics", "see https://example.com"},
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db         *gorm.DB
	violations repository.ViolationRepository
	matcher    matcher.Matcher
	rng        *rand.Rand
	nextUserID int64
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
// The same seed produces the same data.
func NewFactory(db *gorm.DB, seed int64) *Factory {
	gofakeit.Seed(seed)
	return &Factory{
		db:         db,
		violations: repository.NewViolationRepository(db),
		matcher:    matcher.NewRegex(),
		rng:        rand.New(rand.NewSource(seed)),
		nextUserID: 100000,
	}
}

// Chat creates an activated chat with full bot rights.
func (f *Factory) Chat(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{
		ID:                 id,
		Title:              gofakeit.Company() + " Community",
		Activated:          true,
		CanReadMessages:    true,
		CanRestrictMembers: true,
		IsBotIn:            true,
	}
	if err := f.db.WithContext(ctx).Create(chat).Error; err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// User creates a user with a fake handle and name.
func (f *Factory) User(ctx context.Context) (*models.User, error) {
	f.nextUserID++
	user := &models.User{
		ID:       f.nextUserID,
		Username: gofakeit.Username(),
		FullName: gofakeit.FirstName() + " " + gofakeit.LastName(),
	}
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Staff creates the given number of admins and moderators for a chat.
func (f *Factory) Staff(ctx context.Context, chatID int64, admins, moderators int) ([]models.User, error) {
	var staff []models.User
	for i := 0; i < admins+moderators; i++ {
		user, err := f.User(ctx)
		if err != nil {
			return nil, err
		}
		var row interface{} = &models.ChatModerator{ChatID: chatID, UserID: user.ID, Activated: true}
		if i < admins {
			row = &models.ChatAdmin{ChatID: chatID, UserID: user.ID, Activated: true}
		}
		if err := f.db.WithContext(ctx).Omit("Chat", "User").Create(row).Error; err != nil {
			return nil, fmt.Errorf("create staff: %w", err)
		}
		staff = append(staff, *user)
	}
	return staff, nil
}

// Rules creates one rule per template.
func (f *Factory) Rules(ctx context.Context, chatID int64) ([]models.Rule, error) {
	rules := make([]models.Rule, 0, len(RuleTemplates))
	for _, tpl := range RuleTemplates {
		rule := models.Rule{
			ChatID:          chatID,
			RuleText:        tpl.Text,
			ExplanationText: tpl.Explanation,
			Type:            tpl.Type,
			Activated:       true,
		}
		if err := f.db.WithContext(ctx).Omit("Chat").Create(&rule).Error; err != nil {
			return nil, fmt.Errorf("create rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Messages posts n messages from violators into the chat over the last maxDays,
// roughly a third of them tripping a rule, and records what they matched.
// It returns the violations recorded.
func (f *Factory) Messages(ctx context.Context, chat *models.Chat, rules []models.Rule, violators []models.User, n, maxDays int) ([]models.RuleViolation, error) {
	if maxDays <= 0 {
		maxDays = 30
	}
	var recorded []models.RuleViolation
	for i := 0; i < n; i++ {
		author := violators[f.rng.Intn(len(violators))]
		text := gofakeit.Sentence(8)
		if f.rng.Intn(3) == 0 {
			text += " " + RuleTemplates[f.rng.Intn(len(RuleTemplates))].Trigger
		}
		at := time.Now().UTC().Add(-time.Duration(f.rng.Intn(maxDays*24*60)) * time.Minute)

		var matched []uint
		for _, r := range rules {
			if ok, err := f.matcher.Matches(r.RuleText, text); err == nil && ok {
				matched = append(matched, r.ID)
			}
		}
		msg := &models.ViolatorMessage{
			ViolatorID: author.ID,
			ChatID:     chat.ID,
			Text:       text,
			Timestamp:  at,
			PostID:     int64(1000 + i),
		}
		vs, err := f.violations.RecordDetection(ctx, msg, matched, at.Add(time.Second))
		if err != nil {
			return nil, err
		}
		recorded = append(recorded, vs...)
	}
	return recorded, nil
}

// Decisions has moderators rule on about half of the violations.
func (f *Factory) Decisions(ctx context.Context, violations []models.RuleViolation, moderators []models.User) (int, error) {
	if len(moderators) == 0 {
		return 0, nil
	}
	count := 0
	for _, v := range violations {
		if f.rng.Intn(2) == 0 {
			continue
		}
		d := models.RuleViolationDecision{
			RuleViolationID: v.ID,
			ModeratorID:     moderators[f.rng.Intn(len(moderators))].ID,
			Timestamp:       v.DetectedAt.Add(time.Duration(1+f.rng.Intn(120)) * time.Minute),
			Decision:        models.DecisionBan,
		}
		if f.rng.Intn(4) == 0 {
			d.Decision = models.DecisionUnban
		}
		if err := f.db.WithContext(ctx).Omit("RuleViolation", "Moderator").Create(&d).Error; err != nil {
			return count, fmt.Errorf("create decision: %w", err)
		}
		count++
	}
	return count, nil
}
