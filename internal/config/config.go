package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL      string `yaml:"base_url"`
		Timeout      string `yaml:"timeout"`
		Token        string `yaml:"token"`
		RefreshURL   string `yaml:"refresh_url"`
		RefreshToken string `yaml:"refresh_token"`
	} `yaml:"api"`
	Submission struct {
		MaxAttempts    int    `yaml:"max_attempts"`
		InitialBackoff string `yaml:"initial_backoff"`
		MaxBackoff     string `yaml:"max_backoff"`
	} `yaml:"submission"`
	Checkpoint struct {
		Interval string `yaml:"interval"`
		TTL      string `yaml:"ttl"`
	} `yaml:"checkpoint"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies environment overrides. A missing file is
// not an error: defaults plus environment are enough to take a quiz. A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if cfg.Submission.MaxAttempts <= 0 {
		cfg.Submission.MaxAttempts = 3
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.API.BaseURL, "QUIZ_API_URL")
	override(&cfg.API.Token, "QUIZ_TOKEN")
	override(&cfg.API.RefreshToken, "QUIZ_REFRESH_TOKEN")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Log.Level, "LOG_LEVEL")
	if raw := os.Getenv("QUIZ_SUBMIT_ATTEMPTS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			cfg.Submission.MaxAttempts = n
		}
	}
}

func override(field *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*field = v
	}
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
