// Package config loads service configuration from a TOML file with
// environment overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Remote    RemoteConfig    `toml:"remote"`
	Codes     CodesConfig     `toml:"codes"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Transform TransformConfig `toml:"transform"`
	SMTP      SMTPConfig      `toml:"smtp"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type RemoteConfig struct {
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxAttempts    int     `toml:"max_attempts"`
	BackoffSeconds float64 `toml:"backoff_seconds"`
	PoolSize       int     `toml:"pool_size"`
}

func (c RemoteConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }
func (c RemoteConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds * float64(time.Second))
}

type CodesConfig struct {
	VerificationLength     int `toml:"verification_length"`
	VerificationTTLMinutes int `toml:"verification_ttl_minutes"`
	ResetLength            int `toml:"reset_length"`
	ResetTTLMinutes        int `toml:"reset_ttl_minutes"`
	WelcomeBonus           int `toml:"welcome_bonus"`
}

type PipelineConfig struct {
	OutputDir string `toml:"output_dir"`
}

type TransformConfig struct {
	Endpoint string `toml:"endpoint"`
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	From     string `toml:"from"`
	Password string `toml:"password"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{URL: "postgres://localhost:5432/lumiprint?sslmode=disable"},
		Auth:     AuthConfig{JWTSecret: ""},
		Remote: RemoteConfig{
			TimeoutSeconds: 10,
			MaxAttempts:    3,
			BackoffSeconds: 0.5,
			PoolSize:       5,
		},
		Codes: CodesConfig{
			VerificationLength:     6,
			VerificationTTLMinutes: 10,
			ResetLength:            8,
			ResetTTLMinutes:        15,
			WelcomeBonus:           3,
		},
		Pipeline:  PipelineConfig{OutputDir: "output"},
		Transform: TransformConfig{Endpoint: "http://localhost:9090/transform"},
		SMTP:      SMTPConfig{Port: 587},
	}
}

// Load reads path over the defaults. A missing file is fine; a malformed one
// is not. Environment variables win over both.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("load config %q: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TRANSFORM_ENDPOINT"); v != "" {
		cfg.Transform.Endpoint = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = port
		}
	}
}
