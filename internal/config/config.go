package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	Chain          string
	PlatformID     string
	Sink           string
	Pricing        string
	Confirmations  uint64
	OutDir         string
	PGDSN          string
	CursorFile     string
	CoinListCache  string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("sink", "both")
	v.SetDefault("pricing", "inline")
	v.SetDefault("confirmations", uint64(5))
	v.SetDefault("out-dir", "./data")
	v.SetDefault("cursor-file", "./data/cursor.json")
	v.SetDefault("coin-list-cache", "./data/coin_list.json")
	v.SetDefault("request-timeout", 20*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 1500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		Chain:          v.GetString("chain"),
		PlatformID:     v.GetString("platform-id"),
		Sink:           v.GetString("sink"),
		Pricing:        v.GetString("pricing"),
		Confirmations:  v.GetUint64("confirmations"),
		OutDir:         v.GetString("out-dir"),
		PGDSN:          v.GetString("pg-dsn"),
		CursorFile:     v.GetString("cursor-file"),
		CoinListCache:  v.GetString("coin-list-cache"),
		RequestTimeout: v.GetDuration("request-timeout"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// SinkMode is a validated sink selection.
type SinkMode int

const (
	SinkDB SinkMode = iota
	SinkCSV
	SinkBoth
)

// ParseSinkMode validates the sink flag value.
func ParseSinkMode(raw string) (SinkMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "db":
		return SinkDB, nil
	case "csv":
		return SinkCSV, nil
	case "both":
		return SinkBoth, nil
	default:
		return SinkBoth, fmt.Errorf("unknown sink mode: %q (want db, csv, or both)", raw)
	}
}

// WantsDB reports whether the Postgres sink is enabled.
func (m SinkMode) WantsDB() bool { return m == SinkDB || m == SinkBoth }

// WantsCSV reports whether the CSV sink is enabled.
func (m SinkMode) WantsCSV() bool { return m == SinkCSV || m == SinkBoth }
