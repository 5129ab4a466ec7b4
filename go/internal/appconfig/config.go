package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/game"
)

// Config holds server settings.
type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
	ConfigFile     string

	NATS    NATSConfig
	Game    game.Config
	Catalog catalog.Config
}

// NATSConfig controls the optional event mirror. An empty URL disables it.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	StreamName    string
}

// Enabled reports whether events are mirrored to NATS.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// fileConfig is the YAML overlay read from CONFIG_FILE.
type fileConfig struct {
	Game    game.Config    `yaml:"game"`
	Catalog catalog.Config `yaml:"catalog"`
}

// NewConfigFromEnv reads the environment (with defaults).
func NewConfigFromEnv() Config {
	gameCfg := game.DefaultConfig()
	gameCfg.TotalRounds = getEnvAsInt("TOTAL_ROUNDS", gameCfg.TotalRounds)
	gameCfg.StartDelay = getEnvAsDuration("START_DELAY_SECONDS", time.Second, gameCfg.StartDelay)
	gameCfg.Discussion = getEnvAsDuration("DISCUSSION_SECONDS", time.Second, gameCfg.Discussion)
	gameCfg.Voting = getEnvAsDuration("VOTING_SECONDS", time.Second, gameCfg.Voting)
	gameCfg.Results = getEnvAsDuration("RESULTS_SECONDS", time.Second, gameCfg.Results)
	gameCfg.Scoreboard = getEnvAsDuration("SCOREBOARD_SECONDS", time.Second, gameCfg.Scoreboard)
	gameCfg.Waiting = getEnvAsDuration("WAITING_SECONDS", time.Second, gameCfg.Waiting)
	gameCfg.ResyncDelay = getEnvAsDuration("RESYNC_DELAY_MS", time.Millisecond, gameCfg.ResyncDelay)
	gameCfg.SweepInterval = getEnvAsDuration("PRESENCE_SWEEP_SECONDS", time.Second, gameCfg.SweepInterval)
	gameCfg.DisconnectGrace = getEnvAsDuration("PRESENCE_GRACE_SECONDS", time.Second, gameCfg.DisconnectGrace)

	catalogCfg := catalog.DefaultConfig()
	catalogCfg.Dir = getEnv("MEDIA_DIR", "./media")
	catalogCfg.RefreshInterval = getEnvAsDuration("CATALOG_REFRESH_SECONDS", time.Second, catalogCfg.RefreshInterval)

	return Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		ConfigFile:     os.Getenv("CONFIG_FILE"),
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "ratethis.events"),
			StreamName:    getEnv("NATS_STREAM", "RATETHIS_EVENTS"),
		},
		Game:    gameCfg,
		Catalog: catalogCfg,
	}
}

// Load reads the environment, applies CONFIG_FILE if set and validates.
func Load() (Config, error) {
	cfg := NewConfigFromEnv()
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the game and catalog sections of a YAML file. Keys that
// are absent keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overlay := fileConfig{Game: c.Game, Catalog: c.Catalog}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.Game = overlay.Game
	c.Catalog = overlay.Catalog
	return nil
}

// Validate rejects settings the game cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Game.TotalRounds < 1 {
		errs = append(errs, fmt.Errorf("total rounds must be positive, got %d", c.Game.TotalRounds))
	}
	if c.Game.MinParticipants < 2 {
		errs = append(errs, fmt.Errorf("min participants must be at least 2, got %d", c.Game.MinParticipants))
	}
	if c.Game.SweepInterval <= 0 {
		errs = append(errs, errors.New("presence sweep interval must be positive"))
	}
	if c.Catalog.RefreshInterval <= 0 {
		errs = append(errs, errors.New("catalog refresh interval must be positive"))
	}
	if c.Catalog.Dir == "" {
		errs = append(errs, errors.New("media directory is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsDuration reads an integer count of unit.
func getEnvAsDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * unit
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
