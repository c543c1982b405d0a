package universal_saver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAPIURL         = "http://127.0.0.1:8000"
	DefaultDownloadDir    = "."
	DefaultSuccessDisplay = 5 * time.Second
	DefaultLogLevel       = "info"
)

type Config struct {
	// Base URL of the download service, without the /api/download path.
	APIURL      string `mapstructure:"api_url"`
	DownloadDir string `mapstructure:"download_dir"`
	// Zero means requests never time out.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// How long a success stays visible before the session returns to idle.
	SuccessDisplay time.Duration `mapstructure:"success_display"`
	LogLevel       string        `mapstructure:"log_level"`
}

// LoadConfig reads configuration from the environment (SAVER_* variables), falling back to defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("download_dir", DefaultDownloadDir)
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("success_display", DefaultSuccessDisplay)
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix("SAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The web frontend used NEXT_PUBLIC_API_URL, keep honouring it
	if err := v.BindEnv("api_url", "SAVER_API_URL", "NEXT_PUBLIC_API_URL"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	parsed, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid api_url %q: %w", c.APIURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid api_url %q: scheme must be http or https", c.APIURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid api_url %q: missing host", c.APIURL)
	}

	if c.DownloadDir == "" {
		c.DownloadDir = DefaultDownloadDir
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %v", c.RequestTimeout)
	}
	if c.SuccessDisplay < 0 {
		return fmt.Errorf("success_display must not be negative, got %v", c.SuccessDisplay)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return nil
}
