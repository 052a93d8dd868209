package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Drafts   DraftConfig    `yaml:"drafts"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"API_BASE_URL" env-default:""`
	Timeout time.Duration `yaml:"timeout" env-default:"15s"`
}

type RealtimeConfig struct {
	URL               string        `yaml:"url" env:"REALTIME_URL" env-default:""`
	ReconnectAttempts int           `yaml:"reconnect_attempts" env-default:"5"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" env-default:"2s"`
}

type DraftConfig struct {
	Path string `yaml:"path" env:"DRAFTS_PATH" env-default:""`
}

type MetricsConfig struct {
	Address string `yaml:"address" env:"METRICS_ADDRESS" env-default:""`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8080/api"
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = "ws://localhost:8080/ws"
	}
	if c.Drafts.Path == "" {
		c.Drafts.Path = "eventsync-drafts.db"
	}
	if c.Realtime.ReconnectAttempts <= 0 {
		c.Realtime.ReconnectAttempts = 5
	}
	if c.Realtime.ReconnectDelay <= 0 {
		c.Realtime.ReconnectDelay = 2 * time.Second
	}
}
