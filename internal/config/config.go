// Package config loads bot configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds bot configuration
type Config struct {
	DiscordToken string
	OpenAIToken  string
	GuildID      string
	AdminRoleID  string

	Model           string
	MaxTokens       int
	Temperature     float64
	MaxPromptTokens int
	GatewayTimeout  time.Duration

	DBPath         string
	PointTablePath string

	IdleTimeout     time.Duration
	ReaperInterval  time.Duration
	MaxTurns        int
	PersonalityTTL  time.Duration
	PersonalityKeep int

	// Partner replies per minute; negative disables.
	UserTurnsPerMinute   int
	GlobalTurnsPerMinute int

	HTTPAddr            string
	SnapshotWeeklyCron  string
	SnapshotMonthlyCron string

	LogLevel  string
	LogPretty bool
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; variables may come from the system.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		DiscordToken: getenv("DISCORD_TOKEN"),
		OpenAIToken:  getenv("OPENAI_API_KEY"),
		GuildID:      getenv("GUILD_ID"),
		AdminRoleID:  getenv("ADMIN_ROLE_ID"),

		Model:           p.str("OPENAI_MODEL", "gpt-4o-mini"),
		MaxTokens:       p.int("MAX_TOKENS", 300),
		Temperature:     p.float("TEMPERATURE", 0.8),
		MaxPromptTokens: p.int("MAX_PROMPT_TOKENS", 0),
		GatewayTimeout:  p.duration("GATEWAY_TIMEOUT", 30*time.Second),

		DBPath:         p.str("DB_PATH", "data/doorknock.db"),
		PointTablePath: getenv("POINT_TABLE_PATH"),

		IdleTimeout:     p.duration("SESSION_IDLE_TIMEOUT", 15*time.Minute),
		ReaperInterval:  p.duration("REAPER_INTERVAL", time.Minute),
		MaxTurns:        p.int("MAX_TURNS", 12),
		PersonalityTTL:  p.duration("PERSONALITY_CACHE_TTL", 30*time.Minute),
		PersonalityKeep: p.int("PERSONALITY_CACHE_SIZE", 256),

		UserTurnsPerMinute:   p.int("USER_TURNS_PER_MINUTE", 5),
		GlobalTurnsPerMinute: p.int("GLOBAL_TURNS_PER_MINUTE", 50),

		HTTPAddr:            p.str("HTTP_ADDR", ":8080"),
		SnapshotWeeklyCron:  p.str("SNAPSHOT_WEEKLY_CRON", "59 59 23 * * SUN"),
		SnapshotMonthlyCron: p.str("SNAPSHOT_MONTHLY_CRON", "59 59 23 * * *"),

		LogLevel:  p.str("LOG_LEVEL", "info"),
		LogPretty: p.bool("LOG_PRETTY", false),
	}
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
	}
	return cfg, nil
}

// Validate checks the settings needed to run the bot.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.OpenAIToken == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return c.ValidateOffline()
}

// ValidateOffline checks the settings used by commands that never reach Discord or OpenAI.
func (c *Config) ValidateOffline() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("MAX_TURNS must be positive")
	}
	return nil
}

type parser struct {
	getenv func(string) string
	errs   []string
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}
