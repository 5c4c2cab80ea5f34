// Package config defines the server's configuration structure and the
// layered loader (flag > env > file > default) used to populate it.
package config

import "time"

// Default configuration values.
const (
	DefaultPort        = 6379
	DefaultDir         = "."
	DefaultDBFilename  = "dump.rdb"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultRateLimit   = 0
	DefaultReadTimeout = 30 * time.Second
	DefaultIdleTimeout = 5 * time.Minute
)

// EnvPrefix is prepended to every environment variable this server
// recognizes, e.g. REDISGO_SERVER_PORT.
const EnvPrefix = "REDISGO_"

// ServerConfig is the fully resolved configuration for one server
// process, after flags, environment, and an optional config file have
// all been layered together.
type ServerConfig struct {
	Server ServerSection `koanf:"server"`
	Log    LogSection    `koanf:"log"`
}

// ServerSection holds the listening and replication configuration.
type ServerSection struct {
	Port        int    `koanf:"port"`
	Replicaof   string `koanf:"replicaof"`
	Dir         string `koanf:"dir"`
	DBFilename  string `koanf:"dbfilename"`
	RateLimit   int    `koanf:"ratelimit"`
	MetricsAddr string `koanf:"metricsaddr"`
}

// LogSection holds the structured-logging configuration.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when no flag, environment
// variable, or config file overrides a value.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Port:       DefaultPort,
			Dir:        DefaultDir,
			DBFilename: DefaultDBFilename,
			RateLimit:  DefaultRateLimit,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
