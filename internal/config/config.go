// Package config loads settings from config.yaml, a .env file and the environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment override, e.g. LONDON_CRIME_OUTPUT_PATH.
const EnvPrefix = "LONDON_CRIME"

// Config holds the full application configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	TempDir string        `yaml:"temp_dir" mapstructure:"temp_dir"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourceConfig identifies the archive and the members to keep.
type SourceConfig struct {
	URL     string   `yaml:"url" mapstructure:"url"`
	Regions []string `yaml:"regions" mapstructure:"regions"`
}

// OutputConfig configures the Parquet file.
type OutputConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	Compression string `yaml:"compression" mapstructure:"compression"`
}

// FetchConfig configures the HTTP download.
type FetchConfig struct {
	UserAgent            string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs          int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ChunkSize            int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	ProgressIntervalSecs int    `yaml:"progress_interval_secs" mapstructure:"progress_interval_secs"`
}

// Timeout returns the client timeout; zero means none.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// ProgressInterval returns the minimum gap between progress log lines.
func (f FetchConfig) ProgressInterval() time.Duration {
	return time.Duration(f.ProgressIntervalSecs) * time.Second
}

// HistoryConfig configures the run history database. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MetricsConfig configures the Prometheus textfile. An empty path disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("source.url", "https://data.police.uk/data/archive/2024-04.zip")
	v.SetDefault("source.regions", []string{"metropolitan", "city-of-london"})
	v.SetDefault("output.path", "public/london_crimes.parquet")
	v.SetDefault("output.compression", "zstd")
	v.SetDefault("fetch.user_agent", "london-crime/1.0")
	v.SetDefault("fetch.timeout_secs", 0)
	v.SetDefault("fetch.chunk_size", 1<<20)
	v.SetDefault("fetch.progress_interval_secs", 5)
	v.SetDefault("temp_dir", "")
	v.SetDefault("history.path", ".london-crime/history.db")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the settings a pipeline run depends on.
func (c *Config) Validate() error {
	var errs []string
	if c.Source.URL == "" {
		errs = append(errs, "source.url is required")
	}
	if len(c.Source.Regions) == 0 {
		errs = append(errs, "source.regions must list at least one region")
	}
	if c.Output.Path == "" {
		errs = append(errs, "output.path is required")
	}
	if c.Fetch.TimeoutSecs < 0 {
		errs = append(errs, "fetch.timeout_secs must be >= 0")
	}
	if c.Fetch.ChunkSize < 0 {
		errs = append(errs, "fetch.chunk_size must be >= 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
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
