package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Console is the configuration of the his-console client.
type Console struct {
	APIURL      string        `mapstructure:"HIS_API_URL"`
	SessionFile string        `mapstructure:"HIS_SESSION_FILE"`
	Timeout     time.Duration `mapstructure:"HIS_TIMEOUT"`
	LogLevel    string        `mapstructure:"HIS_LOG_LEVEL"`
}

func LoadConsole() (*Console, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("HIS_API_URL", "http://localhost:8000")
	v.SetDefault("HIS_SESSION_FILE", defaultSessionFile())
	v.SetDefault("HIS_TIMEOUT", "15s")
	v.SetDefault("HIS_LOG_LEVEL", "info")

	for _, key := range []string{"HIS_API_URL", "HIS_SESSION_FILE", "HIS_TIMEOUT", "HIS_LOG_LEVEL"} {
		_ = v.BindEnv(key)
	}

	_ = v.ReadInConfig()

	cfg := &Console{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal console config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Console) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("HIS_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("HIS_API_URL must use http or https, got %q", u.Scheme)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("HIS_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if c.SessionFile == "" {
		return fmt.Errorf("HIS_SESSION_FILE is required")
	}
	return nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".his-session.yaml"
	}
	return filepath.Join(home, ".his", "session.yaml")
}
