package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/storage/postgres"
)

// Утилита управления схемой базы заказов:
//
//	migrate -command up           применить все ревизии
//	migrate -command down -steps 2 откатить две последние
//	migrate -command status       показать версию схемы
func main() {
	var (
		command string
		steps   int
		dsn     string
	)

	flag.StringVar(&command, "command", "up", "up|down|status")
	flag.IntVar(&steps, "steps", 0, "revisions to apply (0=all) or rollback (0=1)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: OPS_POSTGRES_DSN)")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("OPS_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("OPS_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, command, steps); err != nil {
		fail("%v", err)
	}
}

func run(ctx context.Context, store *postgres.Store, command string, steps int) error {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "status":
		// Только отчёт ниже.
	default:
		return fmt.Errorf("unknown command %q (use up|down|status)", command)
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	fmt.Printf("schema version=%d applied=%d\n", state.Version, state.Applied)
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
