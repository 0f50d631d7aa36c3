// Package config loads cookbook settings from config files, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// ErrAuthWithoutKey is returned by Validate when authentication is enabled in
// production but no API key is configured.
var ErrAuthWithoutKey = errors.New("API_KEY must be set when ENABLE_AUTH is true in production")

// Config is the root configuration of the cookbook binaries.
type Config struct {
	AppName     string        `mapstructure:"app_name" json:"app_name"`
	Version     string        `mapstructure:"version" json:"version"`
	Environment string        `mapstructure:"environment" json:"environment"`
	Server      ServerConfig  `mapstructure:"server" json:"server"`
	Session     SessionConfig `mapstructure:"session" json:"session"`
	Model       ModelConfig   `mapstructure:"model" json:"model"`
	Voice       VoiceConfig   `mapstructure:"voice" json:"voice"`
	Runner      RunnerConfig  `mapstructure:"runner" json:"runner"`
	Logging     LoggingConfig `mapstructure:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string   `mapstructure:"host" json:"host"`
	Port           int      `mapstructure:"port" json:"port"`
	APIKey         string   `mapstructure:"api_key" json:"-"`
	EnableAuth     bool     `mapstructure:"enable_auth" json:"enable_auth"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`
	RequestTimeout int      `mapstructure:"request_timeout" json:"request_timeout"` // seconds
	MaxQueryLength int      `mapstructure:"max_query_length" json:"max_query_length"`
	MaxTokens      int      `mapstructure:"max_tokens" json:"max_tokens"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	URI string `mapstructure:"uri" json:"uri"`
	TTL int    `mapstructure:"ttl" json:"ttl"` // seconds, 0 disables expiry
}

// ModelConfig selects the model provider.
type ModelConfig struct {
	Provider    string `mapstructure:"provider" json:"provider"`
	Name        string `mapstructure:"name" json:"name"`
	APIKey      string `mapstructure:"api_key" json:"-"`
	UseVertexAI bool   `mapstructure:"use_vertexai" json:"use_vertexai"`
	Project     string `mapstructure:"project" json:"project"`
	Location    string `mapstructure:"location" json:"location"`
	BaseURL     string `mapstructure:"base_url" json:"base_url,omitempty"`
}

// VoiceConfig configures the voice assistant tutorial.
type VoiceConfig struct {
	LiveModel  string `mapstructure:"live_model" json:"live_model"`
	TextModel  string `mapstructure:"text_model" json:"text_model"`
	Voice      string `mapstructure:"voice" json:"voice"`
	SampleRate int    `mapstructure:"sample_rate" json:"sample_rate"`
}

// RunnerConfig bounds agent execution.
type RunnerConfig struct {
	MaxConcurrentInvocations int `mapstructure:"max_concurrent_invocations" json:"max_concurrent_invocations"`
	MaxModelCalls            int `mapstructure:"max_model_calls" json:"max_model_calls"`
	EventBufferSize          int `mapstructure:"event_buffer_size" json:"event_buffer_size"`
}

// LoggingConfig configures the logging backend.
type LoggingConfig struct {
	Backend string `mapstructure:"backend" json:"backend"`
	Level   string `mapstructure:"level" json:"level"`
	Format  string `mapstructure:"format" json:"format"`
}

// DefaultConfig returns the configuration built from defaults only.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logrus.Fatalf("error unmarshaling default config: %v", err)
	}

	return &config
}

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	setupViperConfig(v, configFile)
	bindEnvironmentVariables(v)

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, err
	}

	config.Server.AllowedOrigins = splitOrigins(config.Server.AllowedOrigins)

	return config, nil
}

// loadEnvFile loads the .env file if it exists
func loadEnvFile() error {
	if err := gotenv.Load(); err != nil {
		// .env file not found, that's okay - continue with other sources
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Error loading .env file")
		}
	}
	return nil
}

// setupViperConfig configures viper with file paths and defaults
func setupViperConfig(v *viper.Viper, configFile string) {
	v.SetConfigName("cookbook")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("COOKBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
}

// bindEnvironmentVariables binds the unprefixed variable names the tutorials
// have always used.
func bindEnvironmentVariables(v *viper.Viper) {
	v.BindEnv("environment", "ENVIRONMENT")

	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.api_key", "API_KEY")
	v.BindEnv("server.enable_auth", "ENABLE_AUTH")
	v.BindEnv("server.allowed_origins", "ALLOWED_ORIGINS")
	v.BindEnv("server.request_timeout", "REQUEST_TIMEOUT")
	v.BindEnv("server.max_query_length", "MAX_QUERY_LENGTH")
	v.BindEnv("server.max_tokens", "MAX_TOKENS")

	v.BindEnv("session.uri", "SESSION_SERVICE_URI")
	v.BindEnv("session.ttl", "SESSION_TTL")

	bindModelEnvVars(v)

	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
	v.BindEnv("logging.backend", "LOG_BACKEND")
}

// bindModelEnvVars binds provider credentials and model selection
func bindModelEnvVars(v *viper.Viper) {
	v.BindEnv("model.provider", "MODEL_PROVIDER")
	v.BindEnv("model.name", "MODEL_NAME")
	v.BindEnv("model.api_key", "GOOGLE_API_KEY")
	v.BindEnv("model.use_vertexai", "GOOGLE_GENAI_USE_VERTEXAI")
	v.BindEnv("model.project", "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("model.location", "GOOGLE_CLOUD_LOCATION")
	v.BindEnv("model.base_url", "MODEL_BASE_URL")

	v.BindEnv("voice.live_model", "VOICE_ASSISTANT_LIVE_MODEL")
	v.BindEnv("voice.text_model", "VOICE_ASSISTANT_TEXT_MODEL")
}

// readAndUnmarshalConfig reads the configuration file and unmarshals it
func readAndUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "ADK Production Deployment API")
	v.SetDefault("version", "1.0")
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.enable_auth", false)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.request_timeout", 30)
	v.SetDefault("server.max_query_length", 10000)
	v.SetDefault("server.max_tokens", 4096)

	// Session defaults
	v.SetDefault("session.uri", "memory://")
	v.SetDefault("session.ttl", 86400)

	// Model defaults
	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.name", "gemini-2.0-flash")
	v.SetDefault("model.use_vertexai", false)
	v.SetDefault("model.location", "us-central1")

	// Voice assistant defaults
	v.SetDefault("voice.live_model", "gemini-2.0-flash-live-001")
	v.SetDefault("voice.text_model", "gemini-2.5-flash")
	v.SetDefault("voice.voice", "Puck")
	v.SetDefault("voice.sample_rate", 16000)

	// Runner defaults
	v.SetDefault("runner.max_concurrent_invocations", 10)
	v.SetDefault("runner.max_model_calls", 100)
	v.SetDefault("runner.event_buffer_size", 100)

	// Logging defaults
	v.SetDefault("logging.backend", "logrus")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// splitOrigins flattens comma separated entries coming from ALLOWED_ORIGINS.
func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// RequestTimeout returns the per-request timeout of the API.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// SessionTTL returns the session expiry applied by key-value backends. A
// configured TTL of zero or less maps to -1, which backends read as no expiry.
func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTL <= 0 {
		return -1
	}
	return time.Duration(c.Session.TTL) * time.Second
}

// Validate checks production safety rules.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}

	if c.Server.EnableAuth && c.Server.APIKey == "" {
		return ErrAuthWithoutKey
	}

	if slices.Contains(c.Server.AllowedOrigins, "*") {
		logrus.Warn("Wildcard CORS origin is configured in production")
	}

	return nil
}
