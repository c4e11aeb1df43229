package config

import (
	"errors"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the processes read at startup. It is loaded once and
// passed by pointer to the components that need it; nothing here is a package
// global.
type Config struct {
	Database   DatabaseConfig   `envPrefix:"DB_"`
	RabbitMQ   RabbitMQConfig   `envPrefix:"RABBITMQ_"`
	Salesforce SalesforceConfig `envPrefix:"SF_"`
	Admin      AdminConfig
	Poller     PollerConfig
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"bookstore"`
}

type RabbitMQConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5672"`
	User     string `env:"USER" envDefault:"guest"`
	Password string `env:"PASSWORD" envDefault:"guest"`
}

// SalesforceConfig covers the OAuth2 client-credentials exchange and the REST
// API version used for object creation and polling.
type SalesforceConfig struct {
	AuthURL      string `env:"AUTH_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	APIVersion   string `env:"API_VERSION" envDefault:"v58.0"`
}

type AdminConfig struct {
	APIKey string `env:"ADMIN_API_KEY"`
}

type PollerConfig struct {
	IntervalSeconds int `env:"CRM_POLL_INTERVAL_SECONDS" envDefault:"30"`
}

// Load reads .env / .env.local overlays when present, then parses the
// environment into a Config and validates required fields.
func Load() (*Config, error) {
	loadDotEnv(".env", ".env.local")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads whichever of the given files exist; missing files are fine.
func loadDotEnv(files ...string) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		_ = godotenv.Load(existing...)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "DB_PORT must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "DB_USER is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "DB_PASSWORD is required")
	}

	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "RABBITMQ_PORT must be in 1..65535")
	}

	if c.Salesforce.AuthURL == "" {
		problems = append(problems, "SF_AUTH_URL is required")
	}
	if c.Salesforce.ClientID == "" {
		problems = append(problems, "SF_CLIENT_ID is required")
	}
	if c.Salesforce.ClientSecret == "" {
		problems = append(problems, "SF_CLIENT_SECRET is required")
	}

	if c.Admin.APIKey == "" {
		problems = append(problems, "ADMIN_API_KEY is required")
	}
	if c.Poller.IntervalSeconds <= 0 {
		problems = append(problems, "CRM_POLL_INTERVAL_SECONDS must be > 0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
