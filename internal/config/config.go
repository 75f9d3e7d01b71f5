package config

import (
	"os"
	"strconv"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort int

	// Storage selects the slot backend: "file" for standalone runs,
	// "postgres" for the shared deployment.
	Storage string
	DataDir string
	DBDSN   string

	// RabbitURL may be empty, in which case checkout events are logged
	// instead of published.
	RabbitURL string
}

func Load() Config {
	return Config{
		AppEnv:    getEnv("APP_ENV", "dev"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		HTTPPort:  getEnvInt("CART_HTTP_PORT", 8081),
		Storage:   getEnv("CART_STORAGE", StorageFile),
		DataDir:   getEnv("CART_DATA_DIR", "./data"),
		DBDSN:     os.Getenv("CART_DB_DSN"),
		RabbitURL: os.Getenv("RABBITMQ_URL"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
