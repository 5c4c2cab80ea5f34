package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader assembles a ServerConfig from, in increasing priority: the
// built-in defaults, an optional YAML file, environment variables
// prefixed with EnvPrefix, and finally explicit CLI flag overrides
// applied by the caller after Load returns.
type Loader struct {
	k        *koanf.Koanf
	filePath string
}

// NewLoader creates a loader optionally seeded with a config file path.
func NewLoader(filePath string) *Loader {
	return &Loader{k: koanf.New("."), filePath: filePath}
}

// Load returns a ServerConfig built from defaults, the config file (if
// set), and environment variables, in that order of increasing
// priority. Callers should apply flag overrides on top of the result.
func (l *Loader) Load() (*ServerConfig, error) {
	cfg := Default()

	if err := l.k.Load(structProvider(cfg), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", l.filePath, err)
		}
	}

	envTransform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := l.k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	out := Default()
	if err := l.k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return out, nil
}

// structProvider adapts an already-populated ServerConfig as a koanf
// provider so defaults participate in the same merge as the file and
// env layers instead of needing separate fallback logic downstream.
func structProvider(cfg *ServerConfig) koanf.Provider {
	return mapProvider{
		"server": map[string]any{
			"port":        cfg.Server.Port,
			"replicaof":   cfg.Server.Replicaof,
			"dir":         cfg.Server.Dir,
			"dbfilename":  cfg.Server.DBFilename,
			"ratelimit":   cfg.Server.RateLimit,
			"metricsaddr": cfg.Server.MetricsAddr,
		},
		"log": map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
	}
}

// mapProvider is a minimal koanf provider backed by an in-memory map,
// used to seed defaults before the file and env layers are merged in.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: ReadBytes not supported by map provider")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
