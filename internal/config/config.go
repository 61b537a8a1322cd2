package config

import (
	"os"
	"strings"
	"time"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel       = "info"
	defaultWindowDuration = 10.0
	defaultOutput         = "powercap_log.csv"
	defaultLogDir         = "/var/lib/powercapd/logs"
	defaultTimezone       = "America/Sao_Paulo"
	defaultRetryDelay     = 10
	defaultStopTimeout    = 15
	defaultHistoryDB      = "/var/lib/powercapd/history.db"
)

type Config struct {
	WindowDuration float64 `mapstructure:"window_duration"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	MaxWindows     int     `mapstructure:"max_windows"`
	Output         string  `mapstructure:"output"`
	LogDir         string  `mapstructure:"log_dir"`
	Timezone       string  `mapstructure:"timezone"`
	RetryDelay     int     `mapstructure:"retry_delay"`
	StopTimeout    int     `mapstructure:"stop_timeout"`
	LogLevel       string  `mapstructure:"log_level"`
	Simulate       bool    `mapstructure:"simulate"`
	History        bool    `mapstructure:"history"`
	HistoryDB      string  `mapstructure:"history_db"`
	MetricsListen  string  `mapstructure:"metrics_listen"`
	MQTTBroker     string  `mapstructure:"mqtt_broker"`
	MQTTTopic      string  `mapstructure:"mqtt_topic"`
	KafkaBrokers   string  `mapstructure:"kafka_brokers"`
	KafkaTopic     string  `mapstructure:"kafka_topic"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("powercapd", pflag.ContinueOnError)
	flags.Float64("window-duration", defaultWindowDuration, "Capture window duration in seconds")
	flags.Float64("sampling-rate", 0, "Nominal sampling rate in Hz (0 = auto-detect)")
	flags.Int("max-windows", 0, "Stop after this many windows (0 = unlimited)")
	flags.String("output", defaultOutput, "Output log file name")
	flags.String("log-dir", defaultLogDir, "Directory for capture logs")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("simulate", false, "Use the synthetic device driver")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("window_duration", defaultWindowDuration)
	v.SetDefault("sampling_rate", 0.0)
	v.SetDefault("max_windows", 0)
	v.SetDefault("output", defaultOutput)
	v.SetDefault("log_dir", defaultLogDir)
	v.SetDefault("timezone", defaultTimezone)
	v.SetDefault("retry_delay", defaultRetryDelay)
	v.SetDefault("stop_timeout", defaultStopTimeout)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("simulate", false)
	v.SetDefault("history", false)
	v.SetDefault("history_db", defaultHistoryDB)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_topic", "")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "")

	v.SetEnvPrefix("POWERCAPD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("POWERCAPD_CONFIG"); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
		}
	} else {
		v.SetConfigName("powercapd")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file").WithData(err.Error())
			}
		}
	}

	// Command line flags take precedence over file and environment
	flags.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		v.Set(key, f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.WindowDuration <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "window_duration must be positive")
	}
	if c.SamplingRate < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling_rate must not be negative")
	}
	if c.MaxWindows < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "max_windows must not be negative")
	}
	if c.RetryDelay <= 0 || c.StopTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "retry_delay and stop_timeout must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errFactory.WithData(errors.ErrInvalidConfig, "unknown timezone: "+c.Timezone)
	}

	return nil
}

// Location resolves the configured fixed civil time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
