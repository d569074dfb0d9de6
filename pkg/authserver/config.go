// Copyright 2025 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authserver

import (
	"fmt"
	"os"
	"strconv"

	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

// AuthMode selects how MCP requests are authenticated.
type AuthMode string

// Supported auth modes.
const (
	// AuthModeEmbedded runs the authorization core and the MCP relay in
	// the same process; tokens are verified by direct KV store lookup.
	AuthModeEmbedded AuthMode = "embedded"
	// AuthModeExternal runs the MCP relay against a separately deployed
	// authorization server, verifying tokens via RFC 7662 introspection.
	AuthModeExternal AuthMode = "external"
	// AuthModeAuthOnly runs only the authorization core, with no MCP
	// relay endpoints mounted.
	AuthModeAuthOnly AuthMode = "auth_only"
)

// Config is the pure configuration for the gateway process. All values
// must be fully resolved (no file paths, no further env lookups).
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// BaseURI is this process's own canonical resource/issuer URI, used
	// for audience checks, metadata documents, and constructing
	// redirect/callback URLs.
	BaseURI string

	// RedisURL, RedisPassword and RedisTLS configure the shared KV
	// store and session relay pub/sub bus. RedisURL empty selects the
	// in-memory store, appropriate for single-replica/test use only.
	RedisURL      string
	RedisPassword string
	RedisTLS      bool

	// Mode selects embedded, external, or auth_only operation.
	Mode AuthMode

	// AuthServerURL is the base URI of the external authorization
	// server. Required when Mode is AuthModeExternal.
	AuthServerURL string

	// AuthServerPort is the listen port used when Mode is
	// AuthModeAuthOnly. Zero means share Port.
	AuthServerPort int
}

// Validate checks that the Config is internally consistent.
func (c *Config) Validate() error {
	logger.Debugw("validating gateway config", "mode", c.Mode, "baseURI", c.BaseURI)

	if c.BaseURI == "" {
		return fmt.Errorf("BASE_URI is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("PORT must be positive, got %d", c.Port)
	}

	switch c.Mode {
	case AuthModeEmbedded, AuthModeExternal, AuthModeAuthOnly:
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %q", c.Mode)
	}

	if c.Mode == AuthModeExternal && c.AuthServerURL == "" {
		return fmt.Errorf("AUTH_SERVER_URL is required when AUTH_MODE=external")
	}

	logger.Debugw("gateway config validation passed", "mode", c.Mode)
	return nil
}

// applyDefaults fills in zero-valued fields that have a sane default.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
		logger.Debugw("applied default port", "port", c.Port)
	}
	if c.Mode == "" {
		c.Mode = AuthModeEmbedded
		logger.Debugw("applied default auth mode", "mode", c.Mode)
	}
}

// LoadConfig builds a Config from the process environment, applies
// defaults, and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:           atoiOrZero(os.Getenv("PORT")),
		BaseURI:        os.Getenv("BASE_URI"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisTLS:       os.Getenv("REDIS_TLS") == "true",
		Mode:           AuthMode(os.Getenv("AUTH_MODE")),
		AuthServerURL:  os.Getenv("AUTH_SERVER_URL"),
		AuthServerPort: atoiOrZero(os.Getenv("AUTH_SERVER_PORT")),
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
