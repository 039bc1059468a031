package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Contest struct {
		CacheTTL        string `yaml:"cache_ttl"`
		PollInterval    string `yaml:"poll_interval"`
		LeaderboardSize int    `yaml:"leaderboard_size"`
		LeaderboardTTL  string `yaml:"leaderboard_ttl"`
	} `yaml:"contest"`
	Scheduler struct {
		Interval    string `yaml:"interval"`
		WaitingLead string `yaml:"waiting_lead"`
	} `yaml:"scheduler"`
}

// Load reads YAML config from path. A missing file yields the zero config so the
// service can run on defaults and in-memory stores.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
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

func (c Config) CacheTTL() time.Duration {
	return TTLDuration(c.Contest.CacheTTL, 10*time.Minute)
}

func (c Config) PollInterval() time.Duration {
	return TTLDuration(c.Contest.PollInterval, 2*time.Second)
}

func (c Config) LeaderboardSize() int {
	if c.Contest.LeaderboardSize <= 0 {
		return 20
	}
	return c.Contest.LeaderboardSize
}

// LeaderboardTTL bounds how long an abandoned ranking set survives in Redis.
func (c Config) LeaderboardTTL() time.Duration {
	return TTLDuration(c.Contest.LeaderboardTTL, 24*time.Hour)
}

func (c Config) StreamTTL() time.Duration {
	return TTLDuration(c.Redis.TTL, 10*time.Minute)
}

func (c Config) SweepInterval() time.Duration {
	return TTLDuration(c.Scheduler.Interval, 5*time.Second)
}

func (c Config) WaitingLead() time.Duration {
	return TTLDuration(c.Scheduler.WaitingLead, 5*time.Minute)
}
