package config

import (
	"log"
	"os"
	"strings"
)

type Config struct {
	ServiceName string
	Port        string
	DBDriver    string // sqlite | postgres
	DBDSN       string
	LogLevel    string
	LogFile     string
	RabbitMQURL string // empty disables event publishing
	SeedDemo    bool
}

func Load() Config {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "circulation"),
		Port:        getEnv("PORT", "8081"),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:       getEnv("DB_DSN", "circulation.db"), // sqlite file in project root
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		SeedDemo:    parseBool(getEnv("SEED_DEMO", "true")),
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		log.Printf("[config] unknown DB_DRIVER=%q, falling back to sqlite", cfg.DBDriver)
		cfg.DBDriver = "sqlite"
	}
	log.Printf("[config] PORT=%s DB_DRIVER=%s DB_DSN=%s LOG_LEVEL=%s LOG_FILE=%s AMQP=%t",
		cfg.Port, cfg.DBDriver, redact(cfg.DBDSN), cfg.LogLevel, cfg.LogFile, cfg.RabbitMQURL != "")
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// redact hides the password part of a URL-style DSN.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return dsn[:scheme+3] + creds[:i] + ":***" + dsn[at:]
	}
	return dsn
}
