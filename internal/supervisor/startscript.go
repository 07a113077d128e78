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
	"os"
	"path/filepath"
	"strings"
)

// startScriptTemplate is the engine's battle-setup script format: one
// [GAME] section naming the map/archive and a fixed two-slot layout — one
// human-style slot the Bridge AI occupies, one Skirmish AI slot for the
// configured opponent. §4.3 fixes this local-game shape rather than
// generalizing to arbitrary team counts.
const startScriptTemplate = `[GAME]
{
	Mapname=%s;
	Gametype=%s;
	IsHost=1;
	HostIP=127.0.0.1;
	HostPort=0;

	[PLAYER0]
	{
		Name=%s;
		Team=0;
		IsFromDemo=0;
	}

	[AI1]
	{
		Name=%s;
		ShortName=%s;
		Team=1;
		Host=0;
	}

	[TEAM0]
	{
		TeamLeader=0;
		AllyTeam=0;
	}

	[TEAM1]
	{
		TeamLeader=0;
		AllyTeam=1;
	}

	[ALLYTEAM0]
	{
		NumAllies=0;
	}

	[ALLYTEAM1]
	{
		NumAllies=0;
	}

	[MODOPTIONS]
	{
	}
}
`

// writeStartScript renders the local-game start script into the instance's
// write directory and returns its path. The handshake token is not part of
// the script text itself (the engine has no notion of it); it travels to
// the Bridge shared library via the process environment set in Start.
func (s *Supervisor) writeStartScript(writeDir string, params StartParams, token string) (string, error) {
	playerName := params.PlayerName
	if playerName == "" {
		playerName = "Bridge"
	}
	opponent := params.Opponent
	if opponent == "" {
		opponent = "NullAI"
	}

	content := fmt.Sprintf(startScriptTemplate,
		escapeScriptValue(params.Map),
		escapeScriptValue(params.Game),
		escapeScriptValue(playerName),
		escapeScriptValue(opponent),
		escapeScriptValue(opponent),
	)

	path := filepath.Join(writeDir, "script.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func escapeScriptValue(v string) string {
	return strings.ReplaceAll(v, ";", "")
}
