package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration. Values are loaded from a YAML
// file and can be overridden by environment variables.
type Config struct {
	Server ServerSection `yaml:"server"`
	Audit  AuditSection  `yaml:"audit"`
}

// ServerSection contains HTTP and storage settings.
type ServerSection struct {
	ListenAddr   string `yaml:"listen_addr"`
	DatabasePath string `yaml:"database_path"`
	TokenSecret  string `yaml:"token_secret"`
}

// AuditSection configures optional audit event publication.
type AuditSection struct {
	NATSURL string `yaml:"nats_url"`
}

// LoadConfig reads a YAML config file and applies environment variable
// overrides. Environment variables take precedence over YAML values.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if path is provided and file exists.
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// Environment variable overrides.
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Server.DatabasePath = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.Server.TokenSecret = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Audit.NATSURL = v
	}

	// Validate required fields.
	if cfg.Server.TokenSecret == "" {
		return nil, fmt.Errorf("token secret is required (set via config file or TOKEN_SECRET env)")
	}

	// Defaults.
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.DatabasePath == "" {
		cfg.Server.DatabasePath = "casefile.db"
	}

	return cfg, nil
}
