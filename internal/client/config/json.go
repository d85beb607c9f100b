package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/praylist/internal/flagx"
	"github.com/dmitrijs2005/praylist/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// may be strings like "15s" or integer nanoseconds.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	CacheDriver    string         `json:"cache_driver"`
	CachePath      string         `json:"cache_path"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	MaxAttempts    int            `json:"max_attempts"`
	RetryDelay     timex.Duration `json:"retry_delay"`
	LogFormat      string         `json:"log_format"`
	Debug          bool           `json:"debug"`
}

// parseJson overlays Config with the JSON file named by -c / -config.
// Fields absent from the file keep their current value. Read and decode
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.CacheDriver != "" {
		cfg.CacheDriver = jc.CacheDriver
	}
	if jc.CachePath != "" {
		cfg.CachePath = jc.CachePath
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.MaxAttempts > 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	if jc.RetryDelay.Duration > 0 {
		cfg.RetryDelay = jc.RetryDelay.Duration
	}
	if jc.LogFormat != "" {
		cfg.LogFormat = jc.LogFormat
	}
	cfg.Debug = cfg.Debug || jc.Debug
}
