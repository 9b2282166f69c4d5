package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBHost     string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/path/sock)
	DBName     string `env:"DB_NAME,required"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`

	// WelcomeGrant seeds a new ledger account on first contact.
	WelcomeGrant int64 `env:"WELCOME_GRANT" envDefault:"100"`
	// ChatMessageCost is the per-assistant-message debit.
	ChatMessageCost int64 `env:"CHAT_MESSAGE_COST" envDefault:"5"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// SweepInterval is the cadence of the expiry sweeps (rewards and point
	// grants). Both sweeps are idempotent so the cadence is not critical.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
