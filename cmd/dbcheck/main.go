// Command dbcheck verifies database connectivity and prints the most
// recent ledger entries. Useful after deploys and schema migrations.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/earlybird-ai/finledger/internal/config"
	"github.com/earlybird-ai/finledger/internal/infrastructure/repository/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("DB health: FAIL (%v)", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("DB health: FAIL (%v)", err)
	}
	log.Println("DB health: OK")

	repo := postgres.NewLedgerRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	entries, err := repo.ListRecent(ctx, 10)
	if err != nil {
		log.Fatalf("listing entries: %v", err)
	}
	log.Printf("recent entries: %d", len(entries))
	for _, e := range entries {
		log.Printf("- [%s] %s %s %.2f %s (%s)", e.Date, e.Label, e.Vendor, e.Amount, e.Currency, e.Fingerprint[:8])
	}
}
