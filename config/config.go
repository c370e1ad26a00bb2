package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// DBEngine ist "sqlite" oder "postgres".
	DBEngine   string `envconfig:"DB_ENGINE" default:"sqlite"`
	DBPath     string `envconfig:"DB_PATH" default:"patentsview.db"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"patentsview"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * 0"`

	// PatentsView-API
	PatentsViewGeneration int           `envconfig:"PATENTSVIEW_GENERATION" default:"2"`
	PatentsViewBaseURL    string        `envconfig:"PATENTSVIEW_BASE_URL"`
	PatentsViewAPIKey     string        `envconfig:"PATENTSVIEW_API_KEY"`
	UserAgent             string        `envconfig:"PATENTSVIEW_USER_AGENT" default:"patent-hand-fetcher"`
	HTTPTimeout           time.Duration `envconfig:"PATENTSVIEW_HTTP_TIMEOUT" default:"60s"`
	DefaultRetryAfter     time.Duration `envconfig:"PATENTSVIEW_DEFAULT_RETRY_AFTER" default:"1s"`

	// Paging und Chunking
	PageSize       int `envconfig:"PAGE_SIZE" default:"100"`
	BatchThreshold int `envconfig:"BATCH_THRESHOLD" default:"1000"`
	RequestBudget  int `envconfig:"REQUEST_BUDGET" default:"2000"`
	PerCallCap     int `envconfig:"PER_CALL_CAP" default:"25"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Validate prüft Kombinationen, die envconfig allein nicht abdeckt.
func (c *Config) Validate() error {
	switch c.DBEngine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unbekannte DB_ENGINE %q", c.DBEngine)
	}
	if c.PatentsViewGeneration == 2 && c.PatentsViewAPIKey == "" {
		return fmt.Errorf("PATENTSVIEW_API_KEY ist für generation 2 erforderlich")
	}
	if c.PageSize <= 0 || c.BatchThreshold <= 0 || c.RequestBudget <= 0 || c.PerCallCap <= 0 {
		return fmt.Errorf("PAGE_SIZE, BATCH_THRESHOLD, REQUEST_BUDGET und PER_CALL_CAP müssen positiv sein")
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, c.Validate()
}
