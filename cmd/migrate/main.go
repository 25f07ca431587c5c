// Command migrate manages the chatwarden schema outside the server process.
//
//	migrate up              apply pending SQL migrations
//	migrate auto            gorm AutoMigrate (refused in prod-like environments)
//	migrate status          print the schema mode and pending migrations
//	migrate down <version>  revert one applied migration
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"chatwarden/internal/config"
	"chatwarden/internal/database"
	"chatwarden/internal/middleware"

	"gorm.io/gorm"
)

var errUsage = errors.New("usage: migrate <up|auto|status|down> [version]")

func main() {
	flag.Parse()
	if err := run(context.Background(), flag.Args()); err != nil {
		middleware.Logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.ConnectWithOptions(ctx, cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "up":
		return up(ctx, db)
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		middleware.Logger.Info("models auto-migrated", slog.Int("models", len(database.PersistentModels())))
		return nil
	case "status":
		return status(ctx, db, cfg)
	case "down":
		if len(args) < 2 {
			return fmt.Errorf("down needs a version: %w", errUsage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := database.RollbackMigration(ctx, db, version); err != nil {
			return fmt.Errorf("rollback %d: %w", version, err)
		}
		middleware.Logger.Info("migration reverted", slog.Int("version", version))
		return nil
	default:
		return errUsage
	}
}

func up(ctx context.Context, db *gorm.DB) error {
	before, err := database.NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations: %w", err)
	}
	after, err := database.NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	middleware.Logger.Info("sql migrations applied",
		slog.Int("newly_applied", len(after)-len(before)),
		slog.Int("total", len(after)),
	)
	return nil
}

func status(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	st, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status: %w", err)
	}
	fmt.Printf("mode:     %s (env %s)\n", st.Mode, st.Environment)
	fmt.Printf("sql:      %t\n", st.WillRunSQL)
	fmt.Printf("auto:     %t\n", st.WillRunAutoMigrate)
	fmt.Printf("applied:  %v\n", st.AppliedVersions)
	if len(st.PendingMigrations) == 0 {
		fmt.Println("pending:  none")
		return nil
	}
	for _, m := range st.PendingMigrations {
		fmt.Printf("pending:  %s\n", m.String())
	}
	return nil
}
