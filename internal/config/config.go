package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all application configuration. It is constructed once at
// process start and passed by reference into each component's constructor.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Jellyfin JellyfinConfig `mapstructure:"jellyfin"`
	TMDB     TMDBConfig     `mapstructure:"tmdb"`
	Trakt    TraktConfig    `mapstructure:"trakt"`
	IMDB     IMDBConfig     `mapstructure:"imdb"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Runner   RunnerConfig   `mapstructure:"runner"`
}

// ServerConfig holds the status HTTP server configuration.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// DatabaseConfig holds run-history database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// JellyfinConfig holds the target media server connection settings.
type JellyfinConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds per call
}

// TMDBConfig holds TMDB API settings.
type TMDBConfig struct {
	APIKey   string  `mapstructure:"api_key"`
	BaseURL  string  `mapstructure:"base_url"`
	Language string  `mapstructure:"language"`
	Region   string  `mapstructure:"region"`
	Timeout  int     `mapstructure:"timeout"`
	RateRPS  float64 `mapstructure:"rate_rps"` // requests per second budget
}

// TraktConfig holds Trakt API settings. The access token is obtained out of
// band (device-code flow is not part of this engine).
type TraktConfig struct {
	ClientID    string `mapstructure:"client_id"`
	AccessToken string `mapstructure:"access_token"`
	BaseURL     string `mapstructure:"base_url"`
	Timeout     int    `mapstructure:"timeout"`
}

// IMDBConfig holds IMDb scraping settings.
type IMDBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// DiscordConfig holds Discord webhook settings.
type DiscordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	ErrorURL   string `mapstructure:"webhook_error"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// IsConfigured reports whether Telegram notifications can be sent.
func (c *TelegramConfig) IsConfigured() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// RunnerConfig holds collection run settings.
type RunnerConfig struct {
	ConfigPath     string `mapstructure:"config_path"` // Kometa-style YAML config
	Cron           string `mapstructure:"cron"`        // daemon-mode run trigger
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	MatchWorkers   int    `mapstructure:"match_workers"`
	DryRun         bool   `mapstructure:"dry_run"`
	IgnoreSchedule bool   `mapstructure:"ignore_schedule"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.jfc")
	}

	v.SetEnvPrefix("JFC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8077)

	v.SetDefault("database.path", "./data/jfc.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("jellyfin.timeout", 30)

	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.language", "en")
	v.SetDefault("tmdb.region", "US")
	v.SetDefault("tmdb.timeout", 15)
	v.SetDefault("tmdb.rate_rps", 20)

	v.SetDefault("trakt.base_url", "https://api.trakt.tv")
	v.SetDefault("trakt.timeout", 15)

	v.SetDefault("imdb.enabled", true)
	v.SetDefault("imdb.base_url", "https://www.imdb.com")
	v.SetDefault("imdb.timeout", 20)

	v.SetDefault("runner.config_path", "./config.yml")
	v.SetDefault("runner.cron", "0 5 * * *")
	v.SetDefault("runner.max_concurrent", 2)
	v.SetDefault("runner.match_workers", 8)
	v.SetDefault("runner.dry_run", false)
	v.SetDefault("runner.ignore_schedule", false)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
