package resource

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the remote endpoint settings for a Client.
type Config struct {
	BaseURL  string        `default:"http://localhost:8080/api/v1" envconfig:"BASE_URL"`
	Timeout  time.Duration `default:"15s" envconfig:"TIMEOUT"`
	PageSize int           `default:"20" envconfig:"PAGE_SIZE"`
}

// ConfigFromEnv loads a Config from STOCKSYNC_API_* environment variables,
// falling back to the struct tag defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("stocksync_api", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process resource config: %w", err)
	}
	return cfg, nil
}
