package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "voltrewards/libs/config"
)

// Config defines rewards service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"REWARDS_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"REWARDS_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REWARDS_REDIS_ADDR"`
		Password string `yaml:"password" env:"REWARDS_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REWARDS_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"REWARDS_REDIS_TTL"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"REWARDS_JWT_SECRET"`
	} `yaml:"auth"`
	Risk struct {
		MaxVerifyPerHour   int     `yaml:"maxVerifyPerHour" env:"RISK_MAX_VERIFY_PER_HOUR"`
		MaxSessionsPerHour int     `yaml:"maxSessionsPerHour" env:"RISK_MAX_SESSIONS_PER_HOUR"`
		MaxDistinctIPsDay  int     `yaml:"maxDistinctIpsDay" env:"RISK_MAX_DISTINCT_IPS_DAY"`
		MaxGeoJumpMeters   float64 `yaml:"maxGeoJumpMeters" env:"RISK_MAX_GEO_JUMP_METERS"`
		BlockThreshold     int     `yaml:"blockThreshold" env:"RISK_BLOCK_THRESHOLD"`
	} `yaml:"risk"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8084"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTL = 86400
	cfg.Risk.MaxVerifyPerHour = 10
	cfg.Risk.MaxSessionsPerHour = 4
	cfg.Risk.MaxDistinctIPsDay = 3
	cfg.Risk.MaxGeoJumpMeters = 50000
	cfg.Risk.BlockThreshold = 60

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveSessionTTL returns the cache ttl as duration.
func (c *Config) ActiveSessionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
