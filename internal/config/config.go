package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config defines the application configuration structure
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Output      OutputConfig      `mapstructure:"output"`
	Groups      []Group           `mapstructure:"groups"`
}

// APIConfig defines the Composer API endpoints
type APIConfig struct {
	LiveBaseURL     string `mapstructure:"live_base_url"`
	BacktestBaseURL string `mapstructure:"backtest_base_url"`
}

// CredentialsConfig defines where the credential record lives
type CredentialsConfig struct {
	Path string `mapstructure:"path"`
}

// FetchConfig defines retry and pacing behaviour for provider requests
type FetchConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	RetryDelayMS      int     `mapstructure:"retry_delay_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// OutputConfig defines optional output beyond the CSV on stdout
type OutputConfig struct {
	ParquetEnabled bool   `mapstructure:"parquet_enabled"`
	ParquetDir     string `mapstructure:"parquet_dir"`
}

// SymphonyRef identifies one symphony to fetch. The name is display-only;
// the id is the opaque provider identifier.
type SymphonyRef struct {
	Name string `mapstructure:"name"`
	ID   string `mapstructure:"id"`
}

// Group is one configured bundle of symphonies sharing a reporting mode:
// either a fixed start date, or monthly windows from a start date the
// operator supplies at run time.
type Group struct {
	Name       string        `mapstructure:"name"`
	StartDate  string        `mapstructure:"start_date"`
	Monthly    bool          `mapstructure:"monthly"`
	Symphonies []SymphonyRef `mapstructure:"symphonies"`
}

// Start parses the group's fixed start date.
func (g Group) Start() (time.Time, error) {
	t, err := time.Parse("2006-01-02", g.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("group %q has invalid start_date %q: %w", g.Name, g.StartDate, err)
	}
	return t, nil
}

// LoadConfig loads configuration from file and overrides with environment variables
func LoadConfig(path string) (Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("COMPOSER")

	// Set up mappings for nested config keys to env vars
	viper.BindEnv("api.live_base_url", "COMPOSER_LIVE_BASE_URL")
	viper.BindEnv("api.backtest_base_url", "COMPOSER_BACKTEST_BASE_URL")
	viper.BindEnv("credentials.path", "COMPOSER_CREDENTIALS_PATH")
	viper.BindEnv("fetch.max_retries", "COMPOSER_MAX_RETRIES")
	viper.BindEnv("fetch.retry_delay_ms", "COMPOSER_RETRY_DELAY_MS")
	viper.BindEnv("fetch.requests_per_second", "COMPOSER_REQUESTS_PER_SECOND")
	viper.BindEnv("fetch.timeout_seconds", "COMPOSER_TIMEOUT_SECONDS")
	viper.BindEnv("output.parquet_enabled", "COMPOSER_PARQUET_ENABLED")
	viper.BindEnv("output.parquet_dir", "COMPOSER_PARQUET_DIR")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		// Missing file is fine; env vars and defaults still apply, though a
		// run without groups will fail validation below.
	}

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// applyDefaults sets default values for any config values not set from file or environment
func applyDefaults(config *Config) {
	if config.API.LiveBaseURL == "" {
		config.API.LiveBaseURL = "https://stagehand-api.composer.trade/api/v1"
	}
	if config.API.BacktestBaseURL == "" {
		config.API.BacktestBaseURL = "https://backtest-api.composer.trade/api/v2"
	}
	if config.Credentials.Path == "" {
		config.Credentials.Path = "./composer_credentials.json"
	}
	if config.Fetch.MaxRetries == 0 {
		config.Fetch.MaxRetries = 3
	}
	if config.Fetch.RetryDelayMS == 0 {
		config.Fetch.RetryDelayMS = 500
	}
	if config.Fetch.RequestsPerSecond == 0 {
		config.Fetch.RequestsPerSecond = 1
	}
	if config.Fetch.TimeoutSeconds == 0 {
		config.Fetch.TimeoutSeconds = 30
	}
	if config.Output.ParquetDir == "" {
		config.Output.ParquetDir = "./parquet_data"
	}
}

// Validate checks the group definitions before any network activity.
func (c Config) Validate() error {
	if len(c.Groups) == 0 {
		return fmt.Errorf("no symphony groups configured")
	}

	for i, group := range c.Groups {
		if group.Name == "" {
			return fmt.Errorf("group %d has no name", i)
		}
		if group.Monthly && group.StartDate != "" {
			return fmt.Errorf("group %q sets both monthly mode and a fixed start_date", group.Name)
		}
		if !group.Monthly {
			if group.StartDate == "" {
				return fmt.Errorf("group %q needs either start_date or monthly: true", group.Name)
			}
			if _, err := group.Start(); err != nil {
				return err
			}
		}
		if len(group.Symphonies) == 0 {
			return fmt.Errorf("group %q has no symphonies", group.Name)
		}
		for _, ref := range group.Symphonies {
			if ref.ID == "" {
				return fmt.Errorf("group %q contains symphony %q without an id", group.Name, ref.Name)
			}
		}
	}

	return nil
}

// HasMonthly reports whether any configured group runs in monthly mode and
// therefore needs an operator-supplied start date.
func (c Config) HasMonthly() bool {
	for _, group := range c.Groups {
		if group.Monthly {
			return true
		}
	}
	return false
}
