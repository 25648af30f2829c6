package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/apptcore/libs/config"
	"github.com/md-rashed-zaman/apptcore/libs/db"
	"github.com/md-rashed-zaman/apptcore/libs/runtime"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/migrations"
)

func main() {
	if err := runtime.LoadDotEnv(".env"); err != nil {
		fatal(err.Error())
	}
	var (
		file    = flag.String("file", config.String("SEED_FILE", "availability.yaml"), "yaml file with provider windows")
		dbURL   = flag.String("database-url", config.String("DATABASE_URL", ""), "postgres url")
		migrate = flag.Bool("migrate", config.Bool("MIGRATE_ON_START", true), "apply migrations first")
		dryRun  = flag.Bool("dry-run", false, "validate the file without writing")
	)
	flag.Parse()
	logger := runtime.NewLogger("availability-seed")

	f, err := os.Open(*file)
	if err != nil {
		fatal(err.Error())
	}
	windows, err := parsePlan(f)
	_ = f.Close()
	if err != nil {
		fatal(err.Error())
	}
	if *dryRun {
		fmt.Printf("%d windows ok\n", len(windows))
		return
	}
	if *dbURL == "" {
		fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := db.Open(ctx, *dbURL)
	if err != nil {
		fatal(err.Error())
	}
	defer pool.Close()

	if *migrate {
		if err := migrations.Apply(ctx, pool.Pool); err != nil {
			fatal(err.Error())
		}
	}

	repo := storage.NewAvailabilityRepository(pool, db.TxOptions{LockTimeout: 2 * time.Second})
	for _, w := range windows {
		saved, err := repo.SetWindow(ctx, w.ProviderID, w)
		if err != nil {
			fatal(fmt.Sprintf("provider %s: %v", w.ProviderID, err))
		}
		logger.Info("window seeded", "provider_id", saved.ProviderID, "window_id", saved.ID, "kind", saved.Kind, "active", saved.Active)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
