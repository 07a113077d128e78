// Copyright 2025 The GameManager Authors
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

// Package config loads and validates GameManager's configuration tree: a
// YAML file overlaid with GAMEMANAGER_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// UpstreamMode selects the transport the Multiplexer reads/writes on.
type UpstreamMode string

const (
	UpstreamStdio UpstreamMode = "stdio"
	UpstreamTCP   UpstreamMode = "tcp"
)

// Config is the root configuration tree.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Lobby    LobbyConfig    `yaml:"lobby"`
	Engine   EngineConfig   `yaml:"engine"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

// UpstreamConfig configures the agent-host-facing transport.
type UpstreamConfig struct {
	Mode UpstreamMode `yaml:"mode"`
	Port int          `yaml:"port"`
}

// LobbyConfig configures the default lobby server to dial.
type LobbyConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Locale   string `yaml:"locale"`
}

// EngineConfig configures the Engine Supervisor and IPC Router.
type EngineConfig struct {
	// BinaryPath is the engine executable the Supervisor spawns.
	BinaryPath string `yaml:"binary_path"`

	// ContentRoot holds the shared, read-only content tree that write-dirs
	// symlink into (pool, packages, maps, games, engine, rapid).
	ContentRoot string `yaml:"content_root"`

	// WriteDirRoot is the root under which one write-dir per instance is created.
	WriteDirRoot string `yaml:"write_dir_root"`

	// SocketDir holds the Bridge IPC sockets (default /tmp).
	SocketDir string `yaml:"socket_dir"`

	// HandshakeTimeout bounds how long the Supervisor waits for the Bridge
	// to complete its IPC handshake after the engine process starts.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// CommandQueueSize is validated as positive but is not passed to the
	// Bridge: the Bridge's inbound command queue is fixed at
	// bridge.CommandQueueCapacity.
	CommandQueueSize int `yaml:"command_queue_size"`

	// UpdateThrottleFrames is not passed to the Bridge: the Bridge emits a
	// throttled "update" event every 30 sim frames, bridge.SimThread's
	// default.
	UpdateThrottleFrames int `yaml:"update_throttle_frames"`

	// BridgeName/BridgeVersion identify the installed AI plug-in directory:
	// AI/Skirmish/<BridgeName>/<BridgeVersion>/
	BridgeName    string `yaml:"bridge_name"`
	BridgeVersion string `yaml:"bridge_version"`
}

// SessionConfig configures per-session limits.
type SessionConfig struct {
	ToolCallDeadline   time.Duration `yaml:"tool_call_deadline"`
	MaxConcurrentTools int           `yaml:"max_concurrent_tools"`
}

// LogConfig configures the slog bootstrap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config with every field set to its documented default.
func Default() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills in zero-valued fields with their documented defaults.
func (c *Config) SetDefaults() {
	if c.Upstream.Mode == "" {
		c.Upstream.Mode = UpstreamStdio
	}
	if c.Lobby.Host == "" {
		c.Lobby.Host = "lobby.springrts.com"
	}
	if c.Lobby.Port == 0 {
		c.Lobby.Port = 8200
	}
	if c.Lobby.ClientID == "" {
		c.Lobby.ClientID = "gamemanager"
	}
	if c.Lobby.Locale == "" {
		c.Lobby.Locale = "en"
	}
	if c.Engine.SocketDir == "" {
		c.Engine.SocketDir = os.TempDir()
	}
	if c.Engine.HandshakeTimeout == 0 {
		c.Engine.HandshakeTimeout = 60 * time.Second
	}
	if c.Engine.CommandQueueSize == 0 {
		c.Engine.CommandQueueSize = 1024
	}
	if c.Engine.UpdateThrottleFrames == 0 {
		c.Engine.UpdateThrottleFrames = 30
	}
	if c.Engine.BridgeName == "" {
		c.Engine.BridgeName = "GameManagerBridge"
	}
	if c.Engine.BridgeVersion == "" {
		c.Engine.BridgeVersion = "1"
	}
	if c.Session.ToolCallDeadline == 0 {
		c.Session.ToolCallDeadline = 30 * time.Second
	}
	if c.Session.MaxConcurrentTools == 0 {
		c.Session.MaxConcurrentTools = 16
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "simple"
	}
}

// Validate checks invariants that SetDefaults cannot fix on its own.
func (c *Config) Validate() error {
	switch c.Upstream.Mode {
	case UpstreamStdio:
	case UpstreamTCP:
		if c.Upstream.Port <= 0 {
			return fmt.Errorf("upstream.port is required when upstream.mode is %q", UpstreamTCP)
		}
	default:
		return fmt.Errorf("upstream.mode must be %q or %q, got %q", UpstreamStdio, UpstreamTCP, c.Upstream.Mode)
	}
	if c.Engine.WriteDirRoot == "" {
		return fmt.Errorf("engine.write_dir_root is required")
	}
	if c.Engine.CommandQueueSize <= 0 {
		return fmt.Errorf("engine.command_queue_size must be positive")
	}
	return nil
}

// Load reads a YAML config file, applies defaults, overlays environment
// variables, and validates the result. An empty path yields Default()
// overlaid with environment variables only.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	c.applyEnv()
	c.SetDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
