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

package config

import (
	"os"
	"strconv"
)

// applyEnv overlays GAMEMANAGER_-prefixed environment variables on top of
// whatever the file already set, the same layering order the teacher's
// config env expansion uses: file first, then environment wins.
func (c *Config) applyEnv() {
	if v := os.Getenv("GAMEMANAGER_UPSTREAM_MODE"); v != "" {
		c.Upstream.Mode = UpstreamMode(v)
	}
	if v, ok := envInt("GAMEMANAGER_UPSTREAM_PORT"); ok {
		c.Upstream.Port = v
	}
	if v := os.Getenv("GAMEMANAGER_LOBBY_HOST"); v != "" {
		c.Lobby.Host = v
	}
	if v, ok := envInt("GAMEMANAGER_LOBBY_PORT"); ok {
		c.Lobby.Port = v
	}
	if v := os.Getenv("GAMEMANAGER_ENGINE_BINARY_PATH"); v != "" {
		c.Engine.BinaryPath = v
	}
	if v := os.Getenv("GAMEMANAGER_ENGINE_CONTENT_ROOT"); v != "" {
		c.Engine.ContentRoot = v
	}
	if v := os.Getenv("GAMEMANAGER_ENGINE_WRITE_DIR_ROOT"); v != "" {
		c.Engine.WriteDirRoot = v
	}
	if v := os.Getenv("GAMEMANAGER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GAMEMANAGER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
