package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/9gptlog/dossier-analyzer/internal/analysis"
	"github.com/9gptlog/dossier-analyzer/internal/config"
	"github.com/9gptlog/dossier-analyzer/internal/database"
	"github.com/9gptlog/dossier-analyzer/internal/extractor"
	"github.com/9gptlog/dossier-analyzer/internal/refdata"
	"github.com/9gptlog/dossier-analyzer/internal/segmenter"
	"github.com/9gptlog/dossier-analyzer/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, relying on the environment")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	catalog, err := refdata.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load reference catalog: %v", err)
	}

	dbpool, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
	}
	defer dbpool.Close()

	ctx := context.Background()
	dbManager := database.NewPostgresDBManager(ctx, dbpool)
	if err := dbManager.CreateAnalysisTables(); err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}

	service := analysis.NewService(
		segmenter.New(),
		extractor.New(),
		analysis.NewAsyncWorker(),
		catalog,
		analysis.ServiceConfig{NumExtractionWorkers: cfg.NumExtractionWorkers},
		log,
	)

	router := server.SetupRoutes(server.NewAnalysisService(service, dbManager, log))

	log.Infof("Server starting on port %d", cfg.APIPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.APIPort), router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
