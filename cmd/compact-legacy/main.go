// Command compact-legacy folds the one-row-per-event notifications table
// into bundles, one surviving row per (receiver, target, type).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/staffhub/notifications/internal/logger"
	"github.com/staffhub/notifications/internal/repository"
	"github.com/staffhub/notifications/internal/service"
)

func main() {
	log := logger.Init()
	_ = godotenv.Load()

	driver := flag.String("driver", envOr("DATABASE_DRIVER", "postgres"), "database driver (postgres or sqlite)")
	dsn := flag.String("database-url", os.Getenv("DATABASE_URL"), "database connection string")
	receiver := flag.String("receiver", "", "compact a single receiver id instead of all")
	flag.Parse()

	if *dsn == "" {
		log.Error("database url is required (-database-url or DATABASE_URL)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(*driver, *dsn)
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	svc := service.NewLegacyService(repository.NewLegacyRepository(db))

	if *receiver != "" {
		result, err := svc.Compact(ctx, *receiver)
		if err != nil {
			log.Error("compaction failed", slog.String("receiver_id", *receiver), slog.Any("error", err))
			os.Exit(1)
		}
		log.Info("compaction finished",
			slog.String("receiver_id", *receiver),
			slog.Int("bundles", len(result.Bundled)),
			slog.Int("deleted", len(result.DeleteIDs)),
		)
		return
	}

	summary, err := svc.CompactAll(ctx)
	if err != nil {
		// summary still reports what was compacted before the failure
		log.Error("compaction failed",
			slog.Int("receivers", summary.Receivers),
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	log.Info("compaction finished",
		slog.Int("receivers", summary.Receivers),
		slog.Int("bundles", summary.Bundles),
		slog.Int("deleted", summary.Deleted),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
