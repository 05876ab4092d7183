package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JustJay7/cyber-case-triage/internal/cache"
	"github.com/JustJay7/cyber-case-triage/internal/cases"
	"github.com/JustJay7/cyber-case-triage/internal/config"
	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/internal/grouping"
	"github.com/JustJay7/cyber-case-triage/internal/metrics"
	"github.com/JustJay7/cyber-case-triage/internal/scoring"
	"github.com/JustJay7/cyber-case-triage/internal/server"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

func main() {
	var migrate, retrain bool
	flag.BoolVar(&migrate, "migrate", false, "Run database migrations and exit")
	flag.BoolVar(&retrain, "retrain", false, "Retrain the priority model on verified cases and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	if migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
		log.Info("Database migrations completed successfully")
		return
	}

	m, err := metrics.New()
	if err != nil {
		log.Fatal("Failed to register metrics", "error", err)
	}

	cacheService := cache.NewCache(cfg.CacheSize, cfg.CacheTTL)
	normalizer := evidence.NewNormalizer(cfg.HonorificPrefixes, cfg.PhoneCountryCode)
	scorer := scoring.NewScorer(cfg.MinTrainingRows, cfg.RidgeLambda)
	aggregator := grouping.NewAggregator(db, normalizer)
	linker := grouping.NewLinker(db, normalizer, aggregator, m, log)

	svc := cases.NewService(cases.Dependencies{
		DB:         db,
		Scorer:     scorer,
		Artifacts:  scoring.FileStore{},
		Linker:     linker,
		Aggregator: aggregator,
		Normalizer: normalizer,
		Cache:      cacheService,
		Metrics:    m,
		Logger:     log,
	}, cases.OptionsFromConfig(cfg))

	ctx := context.Background()

	if retrain {
		res, err := svc.RetrainModel(ctx, 0)
		if err != nil {
			log.Fatal("Failed to retrain priority model", "error", err)
		}
		log.Info("Priority model retrained", "training_rows", res.TrainingRows, "version", res.Version)
		return
	}

	// A missing model is not fatal: the service still answers reads and
	// rejects new cases until one is trained.
	if err := scorer.Initialize(ctx, scoring.FileStore{}, cfg.ModelPath, svc, log); err != nil {
		log.Error("Failed to initialize priority model", "error", err)
	}

	srv := server.New(cfg, svc, db, cacheService, m, log)

	log.Info("Starting Cyber Case Triage",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
	)

	if err := srv.Run(); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
