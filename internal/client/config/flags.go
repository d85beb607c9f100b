package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/praylist/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     server base URL
//	-d string     cache driver: sqlite or bolt
//	-p string     cache database path
//	-t int        request timeout in seconds
//	-m int        save attempts before a conflict is given up
//	-r duration   delay between save attempts
//	-l string     log format: text, json or zerolog
//	-v            debug logging
//
// Only these flags are taken from os.Args, so subcommand arguments pass
// through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-p", "-t", "-m", "-r", "-l", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	fs.StringVar(&cfg.CacheDriver, "d", cfg.CacheDriver, "cache driver (sqlite|bolt)")
	fs.StringVar(&cfg.CachePath, "p", cfg.CachePath, "cache database path")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.IntVar(&cfg.MaxAttempts, "m", cfg.MaxAttempts, "save attempts on conflict")
	fs.DurationVar(&cfg.RetryDelay, "r", cfg.RetryDelay, "delay between save attempts")
	fs.StringVar(&cfg.LogFormat, "l", cfg.LogFormat, "log format (text|json|zerolog)")
	fs.BoolVar(&cfg.Debug, "v", cfg.Debug, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
