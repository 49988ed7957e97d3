// Package config loads application configuration from defaults, an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string

	HTTPAddr    string
	AuthSecret  string
	AuthIssuer  string
	CORSOrigins []string

	TelegramBotToken string
	AllowedUsers     []int64

	FreshnessWindow    time.Duration
	ArticleLimit       int
	FetchTimeout       time.Duration
	RefreshConcurrency int
	FetchRate          float64
	WarmInterval       time.Duration

	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	GenerationTimeout time.Duration
}

// raw mirrors the configuration keys as viper sees them.
type raw struct {
	DatabasePath       string        `mapstructure:"database_path"`
	LogLevel           string        `mapstructure:"log_level"`
	HTTPAddr           string        `mapstructure:"http_addr"`
	AuthJWTSecret      string        `mapstructure:"auth_jwt_secret"`
	AuthIssuer         string        `mapstructure:"auth_issuer"`
	CORSOrigins        string        `mapstructure:"cors_origins"`
	TelegramBotToken   string        `mapstructure:"telegram_bot_token"`
	AllowedUsers       string        `mapstructure:"allowed_users"`
	FreshnessWindow    time.Duration `mapstructure:"freshness_window"`
	ArticleLimit       int           `mapstructure:"article_limit"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	RefreshConcurrency int           `mapstructure:"refresh_concurrency"`
	FetchRate          float64       `mapstructure:"fetch_rate"`
	WarmInterval       time.Duration `mapstructure:"warm_interval"`
	LLMBaseURL         string        `mapstructure:"llm_base_url"`
	LLMAPIKey          string        `mapstructure:"llm_api_key"`
	LLMModel           string        `mapstructure:"llm_model"`
	GenerationTimeout  time.Duration `mapstructure:"generation_timeout"`
}

var defaults = map[string]any{
	"database_path":       "./data/digest.db",
	"log_level":           "info",
	"http_addr":           ":8080",
	"auth_jwt_secret":     "",
	"auth_issuer":         "",
	"cors_origins":        "",
	"telegram_bot_token":  "",
	"allowed_users":       "",
	"freshness_window":    "3h",
	"article_limit":       100,
	"fetch_timeout":       "30s",
	"refresh_concurrency": 8,
	"fetch_rate":          0,
	"warm_interval":       "0s",
	"llm_base_url":        "https://api.openai.com/v1",
	"llm_api_key":         "",
	"llm_model":           "gpt-4o-mini",
	"generation_timeout":  "5m",
}

// Load reads configuration. Environment variables win over the file named
// by CONFIG_FILE, which wins over defaults.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var r raw
	if err := v.Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if r.AuthJWTSecret == "" && r.TelegramBotToken == "" {
		return nil, errors.New("AUTH_JWT_SECRET or TELEGRAM_BOT_TOKEN is required")
	}

	for name, d := range map[string]time.Duration{
		"FRESHNESS_WINDOW":   r.FreshnessWindow,
		"FETCH_TIMEOUT":      r.FetchTimeout,
		"GENERATION_TIMEOUT": r.GenerationTimeout,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if r.WarmInterval < 0 {
		return nil, fmt.Errorf("WARM_INTERVAL must not be negative, got %s", r.WarmInterval)
	}
	if r.ArticleLimit <= 0 {
		return nil, fmt.Errorf("ARTICLE_LIMIT must be positive, got %d", r.ArticleLimit)
	}
	if r.RefreshConcurrency <= 0 {
		return nil, fmt.Errorf("REFRESH_CONCURRENCY must be positive, got %d", r.RefreshConcurrency)
	}
	if r.FetchRate < 0 {
		return nil, fmt.Errorf("FETCH_RATE must not be negative, got %g", r.FetchRate)
	}

	allowed, err := parseUserIDs(r.AllowedUsers)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabasePath:       r.DatabasePath,
		LogLevel:           r.LogLevel,
		HTTPAddr:           r.HTTPAddr,
		AuthSecret:         r.AuthJWTSecret,
		AuthIssuer:         r.AuthIssuer,
		CORSOrigins:        splitList(r.CORSOrigins),
		TelegramBotToken:   r.TelegramBotToken,
		AllowedUsers:       allowed,
		FreshnessWindow:    r.FreshnessWindow,
		ArticleLimit:       r.ArticleLimit,
		FetchTimeout:       r.FetchTimeout,
		RefreshConcurrency: r.RefreshConcurrency,
		FetchRate:          r.FetchRate,
		WarmInterval:       r.WarmInterval,
		LLMBaseURL:         r.LLMBaseURL,
		LLMAPIKey:          r.LLMAPIKey,
		LLMModel:           r.LLMModel,
		GenerationTimeout:  r.GenerationTimeout,
	}, nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range splitList(raw) {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		ids = append(ids, uid)
	}
	return ids, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// HTTPEnabled reports whether the HTTP API can authenticate requests.
func (c *Config) HTTPEnabled() bool {
	return c.AuthSecret != ""
}

// TelegramEnabled reports whether the Telegram surface is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}
