package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DatabasePath string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Cache settings
	CacheSize int
	CacheTTL  time.Duration

	// Scoring model settings
	ModelPath       string
	MinTrainingRows int
	RidgeLambda     float64

	// Evidence matching settings
	HonorificPrefixes []string
	PhoneCountryCode  string

	// Evidence file settings
	UploadDir         string
	AllowedExtensions []string
	MaxUploadSize     int64

	// API settings
	PageSize int
}

// DefaultHonorificPrefixes are stripped from the start of evidence values before matching.
var DefaultHonorificPrefixes = []string{
	"นางสาว", "นาง", "นาย", "ด.ช.", "ด.ญ.", "ด.ช", "ด.ญ",
	"Mr.", "Mrs.", "Ms.", "Miss", "Dr.",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not an error if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:              getEnv("HOST", "0.0.0.0"),
		Port:              getEnv("PORT", "8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/cyber_cases.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		ModelPath:         getEnv("MODEL_PATH", "./data/priority_model.json"),
		UploadDir:         getEnv("UPLOAD_DIR", "./data/uploads"),
		PhoneCountryCode:  getEnv("PHONE_COUNTRY_CODE", "66"),
		AllowedExtensions: getList("ALLOWED_EXTENSIONS", []string{"png", "jpg", "jpeg", "pdf"}),
		HonorificPrefixes: getList("HONORIFIC_PREFIXES", DefaultHonorificPrefixes),
	}

	// Parse integer values
	var err error
	cfg.CacheSize, err = strconv.Atoi(getEnv("CACHE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_SIZE: %w", err)
	}

	cacheTTL, err := strconv.Atoi(getEnv("CACHE_TTL", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = time.Duration(cacheTTL) * time.Minute

	cfg.MinTrainingRows, err = strconv.Atoi(getEnv("MIN_TRAINING_ROWS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_TRAINING_ROWS: %w", err)
	}

	cfg.RidgeLambda, err = strconv.ParseFloat(getEnv("RIDGE_LAMBDA", "1.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RIDGE_LAMBDA: %w", err)
	}

	maxUploadMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_MB", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadSize = int64(maxUploadMB) << 20

	cfg.PageSize, err = strconv.Atoi(getEnv("PAGE_SIZE", "12"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAGE_SIZE: %w", err)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("invalid PAGE_SIZE: must be positive, got %d", cfg.PageSize)
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma separated environment variable, dropping empty items.
func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
