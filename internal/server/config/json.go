package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/praylist/internal/flagx"
	"github.com/dmitrijs2005/praylist/internal/timex"
)

// JsonConfig is the JSON shape of the server configuration. Durations use
// timex.Duration, so both "24h" and integer nanoseconds parse.
type JsonConfig struct {
	EndpointAddr    string         `json:"endpoint_addr"`
	Storage         string         `json:"storage"`
	DatabaseDSN     string         `json:"database_dsn"`
	SecretKey       string         `json:"secret_key"`
	SessionTTL      timex.Duration `json:"session_ttl"`
	MaxItemSize     int            `json:"max_item_size"`
	AuthRateLimit   int            `json:"auth_rate_limit"`
	AuthRateBurst   int            `json:"auth_rate_burst"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout"`
	S3RootUser      string         `json:"s3_root_user"`
	S3RootPassword  string         `json:"s3_root_password"`
	S3Bucket        string         `json:"s3_bucket"`
	S3Region        string         `json:"s3_region"`
	S3BaseEndpoint  string         `json:"s3_base_endpoint"`
	LogFormat       string         `json:"log_format"`
	Debug           bool           `json:"debug"`
}

// parseJson overlays config with the file named by -c / -config. Keys
// missing from the file leave the current value alone. An unreadable file
// or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddr, c.EndpointAddr)
	setString(&config.Storage, c.Storage)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.SessionTTL.Duration > 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.MaxItemSize > 0 {
		config.MaxItemSize = c.MaxItemSize
	}
	if c.AuthRateLimit > 0 {
		config.AuthRateLimit = c.AuthRateLimit
	}
	if c.AuthRateBurst > 0 {
		config.AuthRateBurst = c.AuthRateBurst
	}
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogFormat, c.LogFormat)
	config.Debug = config.Debug || c.Debug
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
