// Package config loads settings for the subtrack CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from an optional YAML file, then overridden by SUBTRACK_*
// environment variables.
type Config struct {
	APIURL         string        `yaml:"api_url" env:"SUBTRACK_API_URL" env-default:"http://localhost:8080/api" env-description:"base URL of the subscription API"`
	DBPath         string        `yaml:"db_path" env:"SUBTRACK_DB_PATH" env-default:"subtrack.db" env-description:"path of the local session database"`
	LogLevel       string        `yaml:"log_level" env:"SUBTRACK_LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SUBTRACK_REQUEST_TIMEOUT" env-default:"10s" env-description:"timeout for each API request"`
	StoreKey       string        `yaml:"store_key" env:"SUBTRACK_STORE_KEY" env-description:"passphrase that encrypts the stored session; empty stores it in plain text"`
}

// Load reads the file at path if one is given, and the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api url %q", c.APIURL)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.DBPath == "" {
		return errors.New("db path is required")
	}
	return nil
}

// Usage describes the environment variables Load understands.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return desc
}

func (c *Config) String() string {
	key := "(none)"
	if c.StoreKey != "" {
		key = "(set)"
	}
	return fmt.Sprintf(
		"APIURL: %s\n"+
			"DBPath: %s\n"+
			"LogLevel: %s\n"+
			"RequestTimeout: %s\n"+
			"StoreKey: %s\n",
		c.APIURL,
		c.DBPath,
		c.LogLevel,
		c.RequestTimeout,
		key,
	)
}
