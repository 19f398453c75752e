package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"medquest/config"
	"medquest/db"
	"medquest/internal/logger"
	"medquest/leveling"
	"medquest/models"
	"medquest/services"
	"medquest/store"
)

func main() {
	// Parse command line flags
	userID := flag.String("user", "", "User id (required)")
	trackName := flag.String("track", "", "Track to reset: clinical_cases, questions or flashcards (required)")
	configPath := flag.String("config", "config/config.prod.yml", "Path to config file")
	flag.Parse()

	if *userID == "" || *trackName == "" {
		fmt.Println("Error: user and track are required")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	track, err := models.ParseTrack(*trackName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Driver != config.StoreDriverMongo {
		log.Fatalf("resetxp needs the mongo store, config uses %q", cfg.Store.Driver)
	}
	logg, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, database, err := db.ConnectMongoDB(ctx, cfg.Database.URI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	st := store.NewMongoStore(client, database)
	defer st.Close(context.Background())

	levelCfg := cfg.Engine.Leveling
	svc := services.NewXPService(services.XPServiceDeps{
		Store:        st,
		Calculator:   leveling.New(&levelCfg),
		Logger:       logg,
		MaxAttempts:  cfg.Engine.MaxAttempts,
		RetryBackoff: cfg.Engine.RetryBackoff,
	})

	before, err := svc.GetTrackLevel(ctx, *userID, track)
	if err != nil {
		log.Fatalf("Failed to read track level: %v", err)
	}
	overall, err := svc.ResetTrack(ctx, *userID, track)
	if err != nil {
		log.Fatalf("Failed to reset track: %v", err)
	}

	fmt.Printf("Track reset\n")
	fmt.Printf("   User: %s\n", *userID)
	fmt.Printf("   Track: %s (was level %d, %d XP)\n", track, before.CurrentLevel, before.TotalXP)
	fmt.Printf("   Overall: level %d, %d XP\n", overall.OverallLevel, overall.TotalXP)
}
