// Package config loads runtime configuration for the praylist client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
//	{
//	  "server_url": "https://praylist.example.org",
//	  "cache_driver": "sqlite",
//	  "cache_path": "/home/me/.cache/praylist/praylist.db",
//	  "request_timeout": "15s",
//	  "max_attempts": 3,
//	  "retry_delay": "200ms",
//	  "log_format": "zerolog",
//	  "debug": false
//	}
package config
