package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"poolSync/internal/filter"
)

// FactoryConfig describes one factory whose pools are discovered and
// tracked.
type FactoryConfig struct {
	Address   string `mapstructure:"address"`
	Variant   string `mapstructure:"variant"`
	FeeBps    uint16 `mapstructure:"fee-bps"`
	FromBlock uint64 `mapstructure:"from"`
	ToBlock   uint64 `mapstructure:"to"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL    string
	Factories []FactoryConfig

	BatchSize    uint64
	Concurrency  int
	ChunkSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration

	ReorgRetention int

	Filters     []filter.Spec
	TokenPrices map[string]string

	Checkpoint        string
	CheckpointEnabled bool
	PGDSN             string
	Changelog         string

	MetricsAddr string
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(5000))
	v.SetDefault("concurrency", 4)
	v.SetDefault("chunk-size", 50)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("reorg-retention", 64)
	v.SetDefault("checkpoint", "./data/checkpoints.json")
	v.SetDefault("checkpoint-enabled", true)
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

	var factories []FactoryConfig
	if err := v.UnmarshalKey("factories", &factories); err != nil {
		return Config{}, fmt.Errorf("parse factories: %w", err)
	}

	var filters []filter.Spec
	if err := v.UnmarshalKey("filters", &filters); err != nil {
		return Config{}, fmt.Errorf("parse filters: %w", err)
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		Factories:         factories,
		BatchSize:         v.GetUint64("batch-size"),
		Concurrency:       v.GetInt("concurrency"),
		ChunkSize:         v.GetInt("chunk-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		CallTimeout:       v.GetDuration("call-timeout"),
		ReorgRetention:    v.GetInt("reorg-retention"),
		Filters:           filters,
		TokenPrices:       getStringMap(v, "token-prices"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		PGDSN:             v.GetString("pg-dsn"),
		Changelog:         v.GetString("changelog"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
