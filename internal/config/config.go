// Package config loads server configuration from environment
// variables (with an optional YAML file providing defaults that env
// vars override), following the teacher's own YAML-first config style
// generalized with .env loading for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is every tunable the server reads at boot.
type Config struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"corsOrigin"`

	JWTSecret string        `yaml:"jwtSecret"`
	JWTExpiry time.Duration `yaml:"jwtExpiry"`

	MongoURI string `yaml:"mongoUri"`
	MongoDB  string `yaml:"mongoDatabase"`
	RedisURL string `yaml:"redisUrl"`

	GameStateFlushInterval time.Duration `yaml:"gameStateFlushIntervalMs"`
	GameStateCacheTTL      time.Duration `yaml:"gameStateCacheTtlSeconds"`
	MoveLogTTL             time.Duration `yaml:"moveLogTtlSeconds"`
	MoveLogMaxItems        int           `yaml:"moveLogMaxItems"`

	EngagementDiceEnabled bool `yaml:"engagementDiceEnabled"`

	TauntSystemEnabled bool          `yaml:"tauntSystemEnabled"`
	TauntCooldown      time.Duration `yaml:"tauntCooldownMs"`
	TauntLimitPerMin   int           `yaml:"tauntLimitPerMin"`
	TauntAutoBurst     int           `yaml:"tauntAutoBurstLimit"`
}

// Default mirrors the values DefaultProfile/DefaultConfig use
// elsewhere, so a deployment with no env vars set at all still boots
// into a sane, fully functional configuration.
func Default() Config {
	return Config{
		Port:                   "8080",
		CORSOrigin:             "*",
		JWTExpiry:              24 * time.Hour,
		MongoDB:                "ludoserver",
		GameStateFlushInterval: 2 * time.Second,
		GameStateCacheTTL:      time.Hour,
		MoveLogTTL:             24 * time.Hour,
		MoveLogMaxItems:        300,
		EngagementDiceEnabled:  true,
		TauntSystemEnabled:     true,
		TauntCooldown:          5 * time.Second,
		TauntLimitPerMin:       6,
		TauntAutoBurst:         2,
	}
}

// Load builds the runtime config: start from Default(), optionally
// layer a YAML file's values on top, load a local .env file into the
// process environment if present, then apply any ENV var overrides.
// Env vars always win, matching the teacher's "env overrides file"
// precedence.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	_ = godotenv.Load() // local .env is optional; ignore a missing file

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.CORSOrigin = envOr("CORS_ORIGIN", cfg.CORSOrigin)
	cfg.JWTSecret = envOr("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpiry = envDurationSeconds("JWT_EXPIRY", cfg.JWTExpiry)
	cfg.MongoURI = envOr("MONGODB_URI", cfg.MongoURI)
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.GameStateFlushInterval = envDurationMillis("GAME_STATE_FLUSH_INTERVAL_MS", cfg.GameStateFlushInterval)
	cfg.GameStateCacheTTL = envDurationSeconds("GAME_STATE_CACHE_TTL_SECONDS", cfg.GameStateCacheTTL)
	cfg.MoveLogTTL = envDurationSeconds("GAME_MOVE_LOG_TTL_SECONDS", cfg.MoveLogTTL)
	cfg.MoveLogMaxItems = envInt("GAME_MOVE_LOG_MAX_ITEMS", cfg.MoveLogMaxItems)
	cfg.EngagementDiceEnabled = envBool("ENGAGEMENT_DICE_ENABLED", cfg.EngagementDiceEnabled)
	cfg.TauntSystemEnabled = envBool("TAUNT_SYSTEM_ENABLED", cfg.TauntSystemEnabled)
	cfg.TauntCooldown = envDurationMillis("TAUNT_COOLDOWN_MS", cfg.TauntCooldown)
	cfg.TauntLimitPerMin = envInt("TAUNT_LIMIT_PER_MIN", cfg.TauntLimitPerMin)
	cfg.TauntAutoBurst = envInt("TAUNT_AUTO_BURST_LIMIT", cfg.TauntAutoBurst)

	if cfg.MongoURI == "" {
		return Config{}, fmt.Errorf("MONGODB_URI is required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDurationSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func envDurationMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
