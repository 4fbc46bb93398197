// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MRamiBalles/coup-server/internal/engine"
)

// Config holds every tunable of the server.
type Config struct {
	Addr     string `env:"COUP_ADDR"      envDefault:":8080"`
	DBPath   string `env:"COUP_DB_PATH"   envDefault:"coup.db"`
	LogLevel string `env:"COUP_LOG_LEVEL" envDefault:"info"`

	// Window timeouts
	ChallengeWindow       time.Duration `env:"COUP_CHALLENGE_WINDOW"         envDefault:"15s"`
	BlockWindow           time.Duration `env:"COUP_BLOCK_WINDOW"             envDefault:"15s"`
	BlockChallengeWindow  time.Duration `env:"COUP_BLOCK_CHALLENGE_WINDOW"   envDefault:"15s"`
	InfluenceChoiceWindow time.Duration `env:"COUP_INFLUENCE_CHOICE_TIMEOUT" envDefault:"30s"`
	ExchangeWindow        time.Duration `env:"COUP_EXCHANGE_TIMEOUT"         envDefault:"30s"`

	// Channel buffers
	BroadcastChannelBuffer int `env:"COUP_BROADCAST_BUFFER"   envDefault:"256"`
	ClientSendBuffer       int `env:"COUP_CLIENT_SEND_BUFFER" envDefault:"64"`

	// Connection pool
	DBMaxOpenConns int `env:"COUP_DB_MAX_OPEN_CONNS" envDefault:"1"`
	DBMaxIdleConns int `env:"COUP_DB_MAX_IDLE_CONNS" envDefault:"1"`

	// Rate limiting
	MaxMessageSize       int64    `env:"COUP_MAX_MESSAGE_SIZE"     envDefault:"4096"`
	MaxMessagesPerSecond float64  `env:"COUP_MESSAGES_PER_SECOND"  envDefault:"10"`
	MessageBurst         int      `env:"COUP_MESSAGE_BURST"        envDefault:"20"`
	MaxTables            int      `env:"COUP_MAX_TABLES"           envDefault:"1000"`
	AllowedOrigins       []string `env:"COUP_ALLOWED_ORIGINS"      envSeparator:","`

	ShutdownTimeout time.Duration `env:"COUP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the server configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	windows := map[string]time.Duration{
		"COUP_CHALLENGE_WINDOW":         c.ChallengeWindow,
		"COUP_BLOCK_WINDOW":             c.BlockWindow,
		"COUP_BLOCK_CHALLENGE_WINDOW":   c.BlockChallengeWindow,
		"COUP_INFLUENCE_CHOICE_TIMEOUT": c.InfluenceChoiceWindow,
		"COUP_EXCHANGE_TIMEOUT":         c.ExchangeWindow,
	}
	for name, d := range windows {
		if d < 0 {
			return fmt.Errorf("config: %s must not be negative, got %s", name, d)
		}
	}
	if c.ClientSendBuffer <= 0 || c.BroadcastChannelBuffer <= 0 {
		return fmt.Errorf("config: channel buffers must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("config: COUP_MAX_MESSAGE_SIZE must be positive")
	}
	if c.MaxMessagesPerSecond <= 0 || c.MessageBurst <= 0 {
		return fmt.Errorf("config: message rate and burst must be positive")
	}
	if c.MaxTables <= 0 {
		return fmt.Errorf("config: COUP_MAX_TABLES must be positive")
	}
	return nil
}

// Timeouts maps the window settings onto the engine.
func (c Config) Timeouts() engine.Timeouts {
	return engine.Timeouts{
		Challenge:       c.ChallengeWindow,
		Block:           c.BlockWindow,
		BlockChallenge:  c.BlockChallengeWindow,
		InfluenceChoice: c.InfluenceChoiceWindow,
		Exchange:        c.ExchangeWindow,
	}
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
