// Package config loads the demo server's configuration from a YAML
// file, layering ENTANGLD_-prefixed environment variable overrides on
// top, the same two-source layering the rest of the example pack uses
// for service configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level demo server configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Auth   AuthConfig   `koanf:"auth"`
	// Schemas maps a callable leaf's dotted path to a JSON Schema file
	// validating its RPC params.
	Schemas map[string]string `koanf:"schemas"`
	// Mounts lists remote stores to attach as namespaces at startup.
	Mounts []MountConfig `koanf:"mounts"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// AuthConfig holds bearer-token settings.
type AuthConfig struct {
	TokenHours int    `koanf:"token_hours"`
	UsersFile  string `koanf:"users_file"`
	LoginPath  string `koanf:"login_path"`
}

// MountConfig names a remote store to attach under Namespace, reached
// over the length-prefixed JSON transport at Addr.
type MountConfig struct {
	Namespace string `koanf:"namespace"`
	Addr      string `koanf:"addr"`
}

// Load reads path (if non-empty) as YAML, then layers ENTANGLD_-prefixed
// environment variables on top (ENTANGLD_SERVER_ADDR -> server.addr).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("ENTANGLD_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "ENTANGLD_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{Addr: ":3318"},
		Auth:   AuthConfig{TokenHours: 1, LoginPath: "/auth"},
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
