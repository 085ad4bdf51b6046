package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/hackgods/wellness-scheduling/internal/config"
	"github.com/hackgods/wellness-scheduling/internal/db"
	"github.com/hackgods/wellness-scheduling/internal/logging"
	"github.com/hackgods/wellness-scheduling/internal/seed"
)

func main() {
	counts := seed.DefaultCounts()
	seedValue := flag.Uint64("seed", 42, "fake data seed; 0 picks a random one")
	flag.IntVar(&counts.Centres, "centres", counts.Centres, "number of centres")
	flag.IntVar(&counts.StaffPerCentre, "staff-per-centre", counts.StaffPerCentre, "staff members per centre")
	flag.IntVar(&counts.Clients, "clients", counts.Clients, "number of clients")
	flag.IntVar(&counts.LegacyEvery, "legacy-every", counts.LegacyEvery, "every n-th staff member keeps a legacy centre name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	logger.Info("seed starting", "seed", *seedValue)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	ds := seed.Generate(*seedValue, counts)
	if err := seed.Insert(ctx, pool, ds, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}
