// Command rules bulk-imports chat rules from a YAML file.
//
//	go run ./cmd/rules import rules.yml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"chatwarden/internal/cache"
	"chatwarden/internal/config"
	"chatwarden/internal/database"
	"chatwarden/internal/matcher"
	"chatwarden/internal/repository"
	"chatwarden/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dryRun := flag.Bool("dry-run", false, "Validate the file without writing")
	flag.Parse()
	if flag.NArg() != 2 || flag.Arg(0) != "import" {
		return fmt.Errorf("usage: go run ./cmd/rules [-dry-run] import <file.yml>")
	}

	raw, err := os.ReadFile(flag.Arg(1))
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	file, err := ParseRuleFile(raw)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	m, err := matcher.New(cfg.Matcher)
	if err != nil {
		return err
	}
	if errs := file.Validate(m); len(errs) > 0 {
		return fmt.Errorf("invalid rules file:\n  %s", strings.Join(errs, "\n  "))
	}
	if *dryRun {
		log.Printf("%d chats, %d rules OK", len(file.Chats), file.Count())
		return nil
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	rdb := cache.InitRedis(cfg.RedisURL)
	rules := service.NewRulesService(
		repository.NewRuleRepository(db),
		repository.NewChatRepository(db),
		cache.NewRuleCache(rdb, cfg.RuleCacheTTL()),
		m,
	)

	created, err := file.Import(ctx, rules)
	log.Printf("imported %d rules", created)
	return err
}
