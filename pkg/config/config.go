// Package config provides a reusable loader for bitseal configuration files
// and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loki-sama/bitseal/pkg/utils"
)

// Config is the unified configuration for a bitseal engine instance. It
// mirrors the knobs named in spec §6.
type Config struct {
	PoW struct {
		Enabled                bool `mapstructure:"enabled" json:"enabled"`
		Workers                int  `mapstructure:"workers" json:"workers"`
		NetworkNonceTrialsPerByte uint64 `mapstructure:"network_nonce_trials_per_byte" json:"network_nonce_trials_per_byte"`
		NetworkExtraBytes      uint64 `mapstructure:"network_extra_bytes" json:"network_extra_bytes"`
	} `mapstructure:"pow" json:"pow"`

	Queue struct {
		FirstAttemptTTLSeconds      int64 `mapstructure:"first_attempt_ttl_seconds" json:"first_attempt_ttl_seconds"`
		SubsequentAttemptsTTLSeconds int64 `mapstructure:"subsequent_attempts_ttl_seconds" json:"subsequent_attempts_ttl_seconds"`
		MinimumTimeToLiveSeconds    int64 `mapstructure:"minimum_time_to_live_seconds" json:"minimum_time_to_live_seconds"`
		MaximumAttempts             int   `mapstructure:"maximum_attempts" json:"maximum_attempts"`
	} `mapstructure:"queue" json:"queue"`

	Scheduler struct {
		TimeBetweenDatabaseCleaningSeconds int64 `mapstructure:"time_between_database_cleaning_seconds" json:"time_between_database_cleaning_seconds"`
		MinimumTimeBehindNetworkSeconds    int64 `mapstructure:"minimum_time_behind_network_seconds" json:"minimum_time_behind_network_seconds"`
		PubkeyRedisseminateAfterDays       int   `mapstructure:"pubkey_redisseminate_after_days" json:"pubkey_redisseminate_after_days"`
	} `mapstructure:"scheduler" json:"scheduler"`

	Gateway struct {
		BaseURL        string `mapstructure:"base_url" json:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	} `mapstructure:"gateway" json:"gateway"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// Defaults returns a Config populated with the defaults named in spec §4.7
// and §6. Load overlays these with any file/env overrides.
func Defaults() Config {
	var c Config
	c.PoW.Enabled = true
	c.PoW.Workers = 1
	c.PoW.NetworkNonceTrialsPerByte = 1000
	c.PoW.NetworkExtraBytes = 1000
	c.Queue.FirstAttemptTTLSeconds = 3600
	c.Queue.SubsequentAttemptsTTLSeconds = 86400
	c.Queue.MinimumTimeToLiveSeconds = 120
	c.Queue.MaximumAttempts = 500
	c.Scheduler.TimeBetweenDatabaseCleaningSeconds = 3600
	c.Scheduler.MinimumTimeBehindNetworkSeconds = 30
	c.Scheduler.PubkeyRedisseminateAfterDays = 28
	c.Gateway.BaseURL = "http://localhost:8444"
	c.Gateway.TimeoutSeconds = 30
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files under configPaths and merges any
// environment-specific overrides named by env. The resulting configuration
// is stored in AppConfig and returned. If no config file is found the
// built-in Defaults are returned unchanged. Environment variables override
// only keys that a loaded config file defines, looked up under the
// upper-cased dotted key name (for example POW.WORKERS); no env prefix or
// key replacer is set.
func Load(env string, configPaths ...string) (*Config, error) {
	AppConfig = Defaults()

	viper.SetConfigName("default")
	viper.SetConfigType("yaml")
	if len(configPaths) == 0 {
		configPaths = []string{"./config", "."}
	}
	for _, p := range configPaths {
		viper.AddConfigPath(p)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	} else if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the BITSEAL_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("BITSEAL_ENV", ""))
}

// FirstAttemptTTL returns the configured first-attempt TTL as a duration.
func (c *Config) FirstAttemptTTL() time.Duration {
	return time.Duration(c.Queue.FirstAttemptTTLSeconds) * time.Second
}

// SubsequentAttemptsTTL returns the configured subsequent-attempt TTL.
func (c *Config) SubsequentAttemptsTTL() time.Duration {
	return time.Duration(c.Queue.SubsequentAttemptsTTLSeconds) * time.Second
}
