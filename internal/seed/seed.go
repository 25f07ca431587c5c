package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatwarden/internal/database"
	"chatwarden/internal/middleware"
	"chatwarden/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumChats          int
	NumViolators      int
	NumMessages       int
	AdminsPerChat     int
	ModeratorsPerChat int
	MaxDays           int
	ShouldClean       bool
	Seed              int64
}

// DefaultOptions is a small but complete demo.
func DefaultOptions() Options {
	return Options{
		NumChats:          2,
		NumViolators:      15,
		NumMessages:       60,
		AdminsPerChat:     1,
		ModeratorsPerChat: 2,
		MaxDays:           14,
		Seed:              time.Now().UnixNano(),
	}
}

// Summary reports what Seed created.
type Summary struct {
	Chats      int
	Rules      int
	Violations int
	Decisions  int
}

// Seed populates the database with demo chats, staff, rules, messages,
// violations and decisions.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	log := middleware.Logger
	log.Info("starting database seeding", slog.Int("chats", opts.NumChats), slog.Int("messages", opts.NumMessages))

	if opts.ShouldClean {
		if err := clearData(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to clear data: %w", err)
		}
	}

	f := NewFactory(db, opts.Seed)
	violators := make([]models.User, 0, opts.NumViolators)
	for i := 0; i < opts.NumViolators; i++ {
		u, err := f.User(ctx)
		if err != nil {
			return nil, err
		}
		violators = append(violators, *u)
	}

	sum := &Summary{}
	for i := 0; i < opts.NumChats; i++ {
		chat, err := f.Chat(ctx, -1001000000000-int64(i))
		if err != nil {
			return nil, err
		}
		staff, err := f.Staff(ctx, chat.ID, opts.AdminsPerChat, opts.ModeratorsPerChat)
		if err != nil {
			return nil, err
		}
		rules, err := f.Rules(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		var violations []models.RuleViolation
		if len(violators) > 0 {
			violations, err = f.Messages(ctx, chat, rules, violators, opts.NumMessages, opts.MaxDays)
			if err != nil {
				return nil, err
			}
		}
		decided, err := f.Decisions(ctx, violations, staff[min(opts.AdminsPerChat, len(staff)):])
		if err != nil {
			return nil, err
		}

		sum.Chats++
		sum.Rules += len(rules)
		sum.Violations += len(violations)
		sum.Decisions += decided
	}

	log.Info("database seeding complete",
		slog.Int("chats", sum.Chats),
		slog.Int("rules", sum.Rules),
		slog.Int("violations", sum.Violations),
		slog.Int("decisions", sum.Decisions),
	)
	return sum, nil
}

// DemoIfEmpty seeds the default demo when no chat exists yet.
func DemoIfEmpty(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Chat{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := Seed(ctx, db, DefaultOptions())
	return err
}

// clearData empties every application table, children first.
func clearData(ctx context.Context, db *gorm.DB) error {
	tables := database.PersistentModels()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(tables[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
