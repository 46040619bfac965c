package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"proctor-quiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"` // gin mode: debug, release, test
	} `yaml:"server"`
	Store struct {
		Backend   string `yaml:"backend"` // memory, redis or postgres
		Namespace string `yaml:"namespace"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Session struct {
		ViolationThreshold int    `yaml:"violation_threshold"`
		TerminationPolicy  string `yaml:"termination_policy"` // zero or score
		TickInterval       string `yaml:"tick_interval"`
	} `yaml:"session"`
	Log      Log `yaml:"log"`
	Accounts struct {
		Builtin []domain.User `yaml:"builtin"`
	} `yaml:"accounts"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`
}

// Default is used as the base before the YAML file is applied.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.Mode = "release"
	cfg.Store.Backend = "memory"
	cfg.Redis.TTL = "10m"
	cfg.Quiz.TTL = "10m"
	cfg.Session.ViolationThreshold = 3
	cfg.Session.TerminationPolicy = "zero"
	cfg.Session.TickInterval = "1s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Accounts.Builtin = []domain.User{
		{Username: "admin", Password: "admin12345", Name: "Administrator", Role: domain.RoleAdmin},
	}
	return cfg
}

// Load reads YAML config from path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
