package config

import (
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/praylist/internal/client/mutation"
	"github.com/dmitrijs2005/praylist/internal/client/repositories"
	"github.com/dmitrijs2005/praylist/internal/filex"
	"github.com/dmitrijs2005/praylist/internal/logging"
)

// Config holds runtime settings for the praylist client.
//
// Units: RequestTimeout and RetryDelay are time.Duration values.
type Config struct {
	ServerURL      string
	CacheDriver    string
	CachePath      string
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	LogFormat      string
	Debug          bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.CacheDriver = repositories.DriverSQLite
	c.CachePath = defaultCachePath()
	c.RequestTimeout = 15 * time.Second
	c.MaxAttempts = mutation.DefaultMaxAttempts
	c.RetryDelay = 0
	c.LogFormat = logging.FormatText
	c.Debug = false
}

func defaultCachePath() string {
	dir, err := filex.DefaultStateDir()
	if err != nil {
		return "praylist.db"
	}
	return filepath.Join(dir, "praylist.db")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
