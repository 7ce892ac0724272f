package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Collaborator modes.
const (
	ModeLocate  = "locate"
	ModeFixture = "fixture"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Mappls       MapplsConfig       `yaml:"mappls" mapstructure:"mappls"`
	Google       GoogleConfig       `yaml:"google" mapstructure:"google"`
	Location     LocationConfig     `yaml:"location" mapstructure:"location"`
	Collaborator CollaboratorConfig `yaml:"collaborator" mapstructure:"collaborator"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MapplsConfig holds Mappls OAuth credentials.
type MapplsConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
}

// Configured reports whether both credentials are set.
func (c MapplsConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LocationConfig configures hospital location resolution.
type LocationConfig struct {
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// EndpointConfig is one credentialed scraping-agent backend.
type EndpointConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
	Key  string `yaml:"key" mapstructure:"key"`
}

// CollaboratorConfig selects and tunes the scrape collaborator.
type CollaboratorConfig struct {
	Mode               string           `yaml:"mode" mapstructure:"mode"`
	Endpoints          []EndpointConfig `yaml:"endpoints" mapstructure:"endpoints"`
	RetriesPerEndpoint int              `yaml:"retries_per_endpoint" mapstructure:"retries_per_endpoint"`
	FailureThreshold   int              `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs   int              `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	TimeoutSecs        int              `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FixturePath        string           `yaml:"fixture_path" mapstructure:"fixture_path"`
}

// PipelineConfig configures run output.
type PipelineConfig struct {
	OutputPath string `yaml:"output_path" mapstructure:"output_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "roster.db")
	v.SetDefault("mappls.client_id", "")
	v.SetDefault("mappls.client_secret", "")
	v.SetDefault("mappls.token_url", "https://outpost.mapmyindia.com/api/security/oauth/token")
	v.SetDefault("mappls.base_url", "https://atlas.mappls.com/api")
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("location.timeout_secs", 15)
	v.SetDefault("location.rate_limit", 5.0)
	v.SetDefault("location.cache_ttl_minutes", 30)
	v.SetDefault("collaborator.mode", ModeLocate)
	v.SetDefault("collaborator.retries_per_endpoint", 2)
	v.SetDefault("collaborator.failure_threshold", 3)
	v.SetDefault("collaborator.reset_timeout_secs", 60)
	v.SetDefault("collaborator.timeout_secs", 300)
	v.SetDefault("collaborator.fixture_path", "")
	v.SetDefault("pipeline.output_path", "validated_providers.csv")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present. Mode is the
// command name: "reconcile", "resolve", "serve" or "sessions".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}

	locate := func() {
		if !c.Mappls.Configured() && c.Google.APIKey == "" {
			errs = append(errs, "mappls.client_id/client_secret or google.api_key is required")
		}
	}

	switch mode {
	case "reconcile", "serve":
		switch c.Collaborator.Mode {
		case ModeLocate:
			locate()
			if len(c.Collaborator.Endpoints) == 0 {
				errs = append(errs, "collaborator.endpoints is required in locate mode")
			}
			for i, ep := range c.Collaborator.Endpoints {
				if ep.URL == "" {
					errs = append(errs, fmt.Sprintf("collaborator.endpoints[%d].url is required", i))
				}
			}
		case ModeFixture:
			if c.Collaborator.FixturePath == "" {
				errs = append(errs, "collaborator.fixture_path is required in fixture mode")
			}
		default:
			errs = append(errs, "collaborator.mode must be locate or fixture")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	case "resolve":
		locate()
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. Format "auto" picks console
// output when stderr is a terminal and JSON otherwise.
func InitLogger(cfg LogConfig) error {
	format := cfg.Format
	if format == "auto" || format == "" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "console"
		}
	}

	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
