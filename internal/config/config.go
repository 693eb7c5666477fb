package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		AllowOrigins []string `yaml:"allow_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Results struct {
		CacheTTL        string `yaml:"cache_ttl"`
		MaxPayloadBytes int    `yaml:"max_payload_bytes"`
	} `yaml:"results"`
	Questions struct {
		TTL          string `yaml:"ttl"`
		PracticeSize int    `yaml:"practice_size"`
	} `yaml:"questions"`
	Quota struct {
		TrialTotal  int            `yaml:"trial_total"`
		TrialPeriod string         `yaml:"trial_period"`
		Plans       map[string]int `yaml:"plans"`
		AdminIDs    []int64        `yaml:"admin_ids"`
	} `yaml:"quota"`
	AI struct {
		Mode         string     `yaml:"mode"` // "direct" or "edge"
		EdgeURL      string     `yaml:"edge_url"`
		EdgeKey      string     `yaml:"edge_key"`
		Providers    []Provider `yaml:"providers"`
		MaxTokens    int        `yaml:"max_tokens"`
		CacheTTL     string     `yaml:"cache_ttl"`
		RevealPace   string     `yaml:"reveal_pace"`
		RequestLimit string     `yaml:"request_timeout"`
	} `yaml:"ai"`
	Auth struct {
		JWTSecret   string `yaml:"jwt_secret"`
		TokenTTL    string `yaml:"token_ttl"`
		InitDataTTL string `yaml:"init_data_ttl"`
	} `yaml:"auth"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`
	RabbitMQ struct {
		URI      string `yaml:"uri"`
		Exchange string `yaml:"exchange"`
		Queue    string `yaml:"queue"`
	} `yaml:"rabbitmq"`
	Scheduler struct {
		SweepEvery string `yaml:"sweep_every"`
	} `yaml:"scheduler"`
}

// Provider describes one entry of the ordered AI fallback chain.
type Provider struct {
	Name    string `yaml:"name"` // openai, anthropic, gemini, openrouter
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Mode = "dev"
	cfg.Results.CacheTTL = "720h"
	cfg.Results.MaxPayloadBytes = 512 * 1024
	cfg.Questions.TTL = "10m"
	cfg.Questions.PracticeSize = 20
	cfg.Quota.TrialTotal = 3
	cfg.Quota.TrialPeriod = "72h"
	cfg.Quota.Plans = map[string]int{"basic": 50, "premium": 200, "unlimited": -1}
	cfg.AI.Mode = "direct"
	cfg.AI.MaxTokens = 600
	cfg.AI.CacheTTL = "24h"
	cfg.AI.RevealPace = "20ms"
	cfg.AI.RequestLimit = "45s"
	cfg.Auth.TokenTTL = "24h"
	cfg.Auth.InitDataTTL = "24h"
	cfg.RabbitMQ.Exchange = "billing.events"
	cfg.RabbitMQ.Queue = "traffic-quiz-billing-events"
	cfg.Scheduler.SweepEvery = "1h"
	return cfg
}

// Load reads YAML config from path on top of Default and applies env overrides.
// A missing file is not an error; the defaults and environment still apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Postgres.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.RabbitMQ.URI, "RABBITMQ_URI")
	setString(&c.AI.EdgeURL, "AI_EDGE_URL")
	setString(&c.AI.EdgeKey, "AI_EDGE_KEY")
	setString(&c.Log.Mode, "LOG_MODE")

	if raw := os.Getenv("ADMIN_IDS"); raw != "" {
		c.Quota.AdminIDs = parseIDs(raw)
	}

	keys := map[string]string{
		"openai":     os.Getenv("OPENAI_API_KEY"),
		"anthropic":  os.Getenv("ANTHROPIC_API_KEY"),
		"gemini":     os.Getenv("GEMINI_API_KEY"),
		"openrouter": os.Getenv("OPENROUTER_API_KEY"),
	}
	if len(c.AI.Providers) == 0 {
		for _, name := range []string{"openai", "anthropic", "gemini", "openrouter"} {
			if keys[name] != "" {
				c.AI.Providers = append(c.AI.Providers, Provider{Name: name})
			}
		}
	}
	for i := range c.AI.Providers {
		p := &c.AI.Providers[i]
		if p.APIKey == "" {
			p.APIKey = keys[strings.ToLower(p.Name)]
		}
	}
}

// IsAdmin reports whether the Telegram user id is configured as an administrator.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.Quota.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
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

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func parseIDs(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
