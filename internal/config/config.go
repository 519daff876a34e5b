package config

import (
	"github.com/spf13/viper"
)

// Config is everything cmd/server needs, loaded from environment
// variables with the PROCFLOW_ prefix. All state is constructed from this
// and passed down explicitly; there are no ambient globals.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisAddr   string `mapstructure:"redis_addr"`
	ListenAddr  string `mapstructure:"listen_addr"`
	StepBudget  int    `mapstructure:"step_budget"`
	LogLevel    string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROCFLOW")
	v.AutomaticEnv()

	v.SetDefault("database_url", "host=localhost user=postgres password=postgres dbname=procflow port=5432 sslmode=disable")
	v.SetDefault("redis_addr", "")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("step_budget", 50)
	v.SetDefault("log_level", "info")

	// Bind explicitly so AutomaticEnv picks the keys up without a config
	// file present.
	for _, key := range []string{"database_url", "redis_addr", "listen_addr", "step_budget", "log_level"} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
