package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/roundtable/roundtable"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Session      SessionConfig      `mapstructure:"session"`
	Roster       RosterConfig       `mapstructure:"roster"`
	Context      ContextConfig      `mapstructure:"context"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// SessionConfig controls where the per-session conversation log is written.
type SessionConfig struct {
	DataDir     string `mapstructure:"data_dir"`     // Root data directory
	LogDirName  string `mapstructure:"log_dir_name"` // Sub-directory for conversation logs
	PrettyPrint bool   `mapstructure:"pretty_print"` // Indent the JSON snapshot
	PlayerName  string `mapstructure:"player_name"`  // Display name of the human participant
}

// RosterConfig controls agent membership and speaking order.
type RosterConfig struct {
	File                  string `mapstructure:"file"`                    // YAML agent list
	RandomizeAfterOpening bool   `mapstructure:"randomize_after_opening"` // Shuffle everyone after the opening speaker
	Seed                  int64  `mapstructure:"seed"`                    // 0 seeds from the clock
	Watch                 bool   `mapstructure:"watch"`                   // Reload the roster file on change
}

// ContextConfig controls prompt rendering.
type ContextConfig struct {
	Separator      string `mapstructure:"separator"`       // Joins rendered turns
	PreambleFormat string `mapstructure:"preamble_format"` // fmt format taking the joined participant names
	NameJoiner     string `mapstructure:"name_joiner"`     // Joins participant names inside the preamble
}

// OrchestratorConfig controls round execution.
type OrchestratorConfig struct {
	TurnTimeout   time.Duration `mapstructure:"turn_timeout"`    // Per-agent reply deadline, 0 disables
	ReleaseOnChat bool          `mapstructure:"release_on_chat"` // Complete the turn on the text reply (text-only backends)
	EnableTracing bool          `mapstructure:"enable_tracing"`  // Emit round/turn spans

	// Rate limiting of dispatches per agent
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`
}

// BackendConfig describes the external reasoning backend.
type BackendConfig struct {
	URL         string        `mapstructure:"url"`          // Websocket endpoint
	DialTimeout time.Duration `mapstructure:"dial_timeout"` // Connection timeout
	APIKeyEnv   string        `mapstructure:"api_key_env"`  // Env var holding the bearer token
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // zerolog level name
	Format string `mapstructure:"format"` // "console" or "json"
}

// LogDir returns the directory conversation snapshots are written to.
func (c SessionConfig) LogDir() string {
	return filepath.Join(c.DataDir, c.LogDirName)
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Session defaults
	v.SetDefault("session.data_dir", internal.DefaultDataDir)
	v.SetDefault("session.log_dir_name", internal.DefaultLogDirName)
	v.SetDefault("session.pretty_print", true)
	v.SetDefault("session.player_name", internal.DefaultPlayerName)

	// Roster defaults
	v.SetDefault("roster.file", "")
	v.SetDefault("roster.randomize_after_opening", false)
	v.SetDefault("roster.seed", 0)
	v.SetDefault("roster.watch", false)

	// Context defaults
	v.SetDefault("context.separator", "\n")
	v.SetDefault("context.preamble_format", "You are in a conversation with %s.")
	v.SetDefault("context.name_joiner", ", ")

	// Orchestrator defaults
	v.SetDefault("orchestrator.turn_timeout", "60s")
	v.SetDefault("orchestrator.release_on_chat", false)
	v.SetDefault("orchestrator.enable_tracing", true)
	v.SetDefault("orchestrator.rate_limit_enabled", false)
	v.SetDefault("orchestrator.rate_limit_capacity", 5)
	v.SetDefault("orchestrator.rate_limit_refill_rate", "1s")

	// Backend defaults
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.dial_timeout", "10s")
	v.SetDefault("backend.api_key_env", "ROUNDTABLE_API_KEY")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. session.data_dir becomes SESSION_DATA_DIR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file discovered; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	AppConfig = cfg

	return &cfg, nil
}
