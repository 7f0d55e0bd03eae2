package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds everything the client needs to talk to the backend. Values
// come from a .env file when present, environment variables otherwise.
type Config struct {
	BackendURL            string `mapstructure:"BACKEND_URL" validate:"required,url"`
	RequestTimeoutSeconds int    `mapstructure:"REQUEST_TIMEOUT_SECONDS" validate:"gt=0"`
	LinkCacheTTLSeconds   int    `mapstructure:"LINK_CACHE_TTL_SECONDS" validate:"gte=0"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	LogFile               string `mapstructure:"LOG_FILE"`
}

// RequestTimeout is the per-request deadline for backend calls. Chat turns
// can take a while when the assistant retrieves citations, hence the
// generous default.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LinkCacheTTL is how long presigned view links are reused before a fresh
// one is requested. It should stay below the backend's presign expiry.
func (c *Config) LinkCacheTTL() time.Duration {
	return time.Duration(c.LinkCacheTTLSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("BACKEND_URL", "")
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 120)
	viper.SetDefault("LINK_CACHE_TTL_SECONDS", 600)
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE", "chatbot.log")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.BackendURL = strings.TrimSuffix(cfg.BackendURL, "/")

	return &cfg, nil
}
