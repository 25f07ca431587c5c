// Command seed fills the database with demo chats, moderators, rules and violations.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"chatwarden/internal/config"
	"chatwarden/internal/database"
	"chatwarden/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()
	flag.IntVar(&opts.NumChats, "chats", opts.NumChats, "Number of chats to create")
	flag.IntVar(&opts.NumViolators, "violators", opts.NumViolators, "Number of message authors to create")
	flag.IntVar(&opts.NumMessages, "messages", opts.NumMessages, "Messages per chat")
	flag.IntVar(&opts.ModeratorsPerChat, "moderators", opts.ModeratorsPerChat, "Moderators per chat")
	flag.IntVar(&opts.MaxDays, "days", opts.MaxDays, "Spread messages over this many past days")
	flag.Int64Var(&opts.Seed, "seed", opts.Seed, "Random seed; the same seed gives the same data")
	flag.BoolVar(&opts.ShouldClean, "clean", true, "Clean database before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sum, err := seed.Seed(ctx, db, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d chats, %d rules, %d violations, %d decisions", sum.Chats, sum.Rules, sum.Violations, sum.Decisions)
}
