package main

import (
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
)

func main() {
	users := flag.Int("users", 50, "number of demo profiles to create")
	flag.Parse()

	_ = godotenv.Load()

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.With("cmd", "seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedDemoData(database, *users, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed", "users", *users)
}
