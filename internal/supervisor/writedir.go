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

package supervisor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-plugin"
)

// contentLinks are the shared-pool subdirectories symlinked into a fresh
// write directory so the engine can find maps, games and the engine
// binaries without copying them per instance. Missing sources are
// non-fatal: an engine instance might only need a subset (e.g. a headless
// replay-check run needs no rapid packages).
var contentLinks = []string{"pool", "packages", "maps", "games", "engine", "rapid"}

// prepareWriteDir lays out one engine instance's private write directory:
// the Bridge's AI/Skirmish install path, LuaUI subfolders, scratch space,
// and best-effort symlinks back into the shared content tree.
func (s *Supervisor) prepareWriteDir(dir string, params StartParams) error {
	dirs := []string{
		dir,
		filepath.Join(dir, "AI", "Skirmish", s.cfg.BridgeName, s.cfg.BridgeVersion),
		filepath.Join(dir, "LuaUI", "Widgets"),
		filepath.Join(dir, "LuaUI", "Config"),
		filepath.Join(dir, "demos"),
		filepath.Join(dir, "temp"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}

	libPath := s.cfg.BridgeLibPath
	if libPath == "" && s.cfg.ContentRoot != "" {
		// No explicit library configured: look for one built Bridge
		// artifact under the content root's bridge/ subtree, the same
		// glob-a-directory discovery hashicorp/go-plugin uses to find
		// installed plugin binaries (plugin.Discover).
		if found, err := plugin.Discover(s.cfg.BridgeName+"*.so", filepath.Join(s.cfg.ContentRoot, "bridge")); err == nil && len(found) > 0 {
			libPath = found[0]
		}
	}
	if libPath != "" {
		dst := filepath.Join(dir, "AI", "Skirmish", s.cfg.BridgeName, s.cfg.BridgeVersion, filepath.Base(libPath))
		if err := linkOrCopy(libPath, dst); err != nil {
			s.log.Warn("failed to install bridge library into write dir", "error", err, "write_dir", dir)
		}
	}

	for _, name := range contentLinks {
		src := filepath.Join(s.cfg.ContentRoot, name)
		if _, err := os.Stat(src); err != nil {
			continue // shared pool doesn't carry this subtree; not fatal
		}
		dst := filepath.Join(dir, name)
		if err := os.Symlink(src, dst); err != nil {
			s.log.Warn("failed to symlink content directory", "name", name, "error", err, "write_dir", dir)
		}
	}

	return nil
}

// linkOrCopy hard-links dst to src, falling back to a byte copy when the
// two paths aren't on the same filesystem (hard links cannot cross
// devices).
func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
