package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Storage driver names accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DataDir       string `env:"DATA_DIR" envDefault:"data"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"redis:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDB       string `env:"MONGO_DB" envDefault:"gemini_chat"`

	// MinIO (transcript exports)
	MinioEndpoint  string `env:"MINIO_ENDPOINT" envDefault:"minio:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"chat-exports"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// Hosted model (any OpenAI-compatible endpoint)
	ModelAPIKey  string `env:"MODEL_API_KEY,required"`
	ModelBaseURL string `env:"MODEL_BASE_URL"`
	ModelName    string `env:"MODEL_NAME" envDefault:"gemini-2.0-flash"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`
}

// New loads .env (if present) and parses the environment.
func New() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.StorageDriver != DriverPostgres && cfg.StorageDriver != DriverFile {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if cfg.StorageDriver == DriverPostgres && cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres driver")
	}
	return cfg, nil
}
