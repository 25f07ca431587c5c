// Package main provides chat roster management utilities for chatwarden.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"chatwarden/internal/config"
	"chatwarden/internal/database"
	"chatwarden/internal/models"
	"chatwarden/internal/repository"
	"chatwarden/internal/service"
)

const usageText = `Usage:
  go run ./cmd/admin add-admin <chat_id> <user_id>       - Make a user admin of a chat
  go run ./cmd/admin remove-admin <chat_id> <user_id>    - Deactivate a chat admin
  go run ./cmd/admin add-moderator <chat_id> <user_id>   - Make a user moderator of a chat
  go run ./cmd/admin remove-moderator <chat_id> <user_id>
  go run ./cmd/admin activate <chat_id>                  - Turn moderation of a chat on
  go run ./cmd/admin deactivate <chat_id>
  go run ./cmd/admin list <chat_id>                      - Show a chat's admins and moderators`

func main() {
	if len(os.Args) < 3 {
		fmt.Println(usageText)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	roster := service.NewRosterService(
		repository.NewChatRepository(db),
		repository.NewUserRepository(db),
		repository.NewRosterRepository(db),
	)

	chatID := mustID(os.Args[2])
	command := os.Args[1]

	switch command {
	case "add-admin", "remove-admin", "add-moderator", "remove-moderator":
		if len(os.Args) < 4 {
			fmt.Println(usageText)
			os.Exit(1)
		}
		user := models.User{ID: mustID(os.Args[3])}
		activated := command == "add-admin" || command == "add-moderator"
		if command == "add-admin" || command == "remove-admin" {
			err = roster.SetAdmin(ctx, chatID, user, activated)
		} else {
			err = roster.SetModerator(ctx, chatID, user, activated)
		}
		if err != nil {
			log.Fatalf("Failed to update roster: %v", err)
		}
		fmt.Printf("Updated user %d in chat %d (activated=%t)\n", user.ID, chatID, activated)

	case "activate", "deactivate":
		if err := roster.SetChatActivated(ctx, chatID, command == "activate"); err != nil {
			log.Fatalf("Failed to update chat: %v", err)
		}
		fmt.Printf("Chat %d %sd\n", chatID, command)

	case "list":
		listRoster(ctx, roster, chatID)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func mustID(raw string) int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		log.Fatalf("Invalid id %q", raw)
	}
	return id
}

func listRoster(ctx context.Context, roster *service.RosterService, chatID int64) {
	chat, err := roster.Chat(ctx, chatID)
	if err != nil {
		log.Fatalf("Failed to load chat: %v", err)
	}
	admins, err := roster.Admins(ctx, chatID)
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}
	mods, err := roster.Moderators(ctx, chatID)
	if err != nil {
		log.Fatalf("Failed to fetch moderators: %v", err)
	}

	fmt.Printf("\n%s (ID: %d, activated=%t, can_read=%t, can_restrict=%t)\n",
		chat.Title, chat.ID, chat.Activated, chat.CanReadMessages, chat.CanRestrictMembers)
	fmt.Println("─────────────────────────────────────")
	for _, a := range admins {
		fmt.Printf("admin     | ID: %d | @%s | %s | activated=%t\n", a.UserID, a.Username, a.FullName, a.Activated)
	}
	for _, m := range mods {
		fmt.Printf("moderator | ID: %d | @%s | %s | activated=%t\n", m.UserID, m.Username, m.FullName, m.Activated)
	}
	fmt.Println("─────────────────────────────────────")
}
