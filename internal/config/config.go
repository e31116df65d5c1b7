// Package config provides YAML-based configuration loading for Roundhouse.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Roundhouse configuration, loaded from config.yaml.
type Config struct {
	Port         int           `yaml:"port"`
	AgentsDir    string        `yaml:"agents_dir"`
	ClaudeBinary string        `yaml:"claude_binary"`
	WorkDir      string        `yaml:"work_dir"`
	ExecTimeout  time.Duration `yaml:"exec_timeout"`

	Store   StoreConfig   `yaml:"store"`
	Notify  NotifyConfig  `yaml:"notify"`
	Janitor JanitorConfig `yaml:"janitor"`
	GitHub  GitHubConfig  `yaml:"github"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is one of sqlite, mysql, file.
	Backend string `yaml:"backend"`

	SQLitePath string `yaml:"sqlite_path"`
	FileDir    string `yaml:"file_dir"`

	MySQLHost     string `yaml:"mysql_host"`
	MySQLPort     int    `yaml:"mysql_port"`
	MySQLUser     string `yaml:"mysql_user"`
	MySQLDatabase string `yaml:"mysql_database"`
}

// NotifyConfig holds chat platform credentials. A platform with an empty
// token is simply not wired up.
type NotifyConfig struct {
	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannel   string `yaml:"slack_channel"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
}

// JanitorConfig schedules the stale execution sweep.
type JanitorConfig struct {
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule"`
	// StaleCutoff is how long a task may sit in running before the sweep
	// fails it.
	StaleCutoff time.Duration `yaml:"stale_cutoff"`
}

// GitHubConfig holds the token used for repository verification.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.AgentsDir == "" {
		c.AgentsDir = "agents"
	}
	if c.ClaudeBinary == "" {
		c.ClaudeBinary = "claude"
	}
	if c.ExecTimeout == 0 {
		c.ExecTimeout = 30 * time.Minute
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "roundhouse.db"
	}
	if c.Store.FileDir == "" {
		c.Store.FileDir = "tasks"
	}
	if c.Store.MySQLHost == "" {
		c.Store.MySQLHost = "127.0.0.1"
	}
	if c.Store.MySQLPort == 0 {
		c.Store.MySQLPort = 3306
	}
	if c.Store.MySQLUser == "" {
		c.Store.MySQLUser = "root"
	}
	if c.Store.MySQLDatabase == "" {
		c.Store.MySQLDatabase = "roundhouse"
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "*/10 * * * *"
	}
	if c.Janitor.StaleCutoff == 0 {
		c.Janitor.StaleCutoff = 2 * time.Hour
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", c.Port))
	}
	switch c.Store.Backend {
	case "sqlite", "mysql", "file":
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q must be sqlite, mysql, or file", c.Store.Backend))
	}
	if c.ExecTimeout < 0 {
		errs = append(errs, "exec_timeout must not be negative")
	}
	if c.Janitor.StaleCutoff < 0 {
		errs = append(errs, "janitor.stale_cutoff must not be negative")
	}
	if c.Notify.SlackBotToken != "" && c.Notify.SlackChannel == "" {
		errs = append(errs, "notify.slack_channel is required with a slack token")
	}
	if c.Notify.DiscordToken != "" && c.Notify.DiscordChannel == "" {
		errs = append(errs, "notify.discord_channel is required with a discord token")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
