package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DatabaseURL          string
	APIPort              int
	CatalogPath          string
	NumExtractionWorkers int
}

func New() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:          databaseURL,
		APIPort:              8080,
		CatalogPath:          "refdata/catalog.yaml",
		NumExtractionWorkers: 4,
	}

	if catalogPath := os.Getenv("CATALOG_PATH"); catalogPath != "" {
		cfg.CatalogPath = catalogPath
	}

	var err error
	cfg.APIPort, err = getEnvAsInt("API_PORT", cfg.APIPort)
	if err != nil {
		return nil, err
	}

	cfg.NumExtractionWorkers, err = getEnvAsInt("NUM_EXTRACTION_WORKERS", cfg.NumExtractionWorkers)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}
