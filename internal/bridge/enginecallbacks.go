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

package bridge

// EngineCallbacks abstracts the few hundred function pointers the real
// engine vtable exposes down to the handful the sim thread actually calls
// to execute a command (§4.4: "consumes an engine-provided callback
// vtable ... for state queries and order issuance"). cmd/bridge's cgo
// layer supplies the concrete implementation that calls through cgo into
// the engine; tests and simulation tooling substitute a fake.
type EngineCallbacks interface {
	IssueMove(unitID int, x, y, z float64, queue bool) error
	IssueStop(unitID int, queue bool) error
	IssueAttack(unitID int, targetUnitID int, queue bool) error
	IssueBuild(unitID int, defName string, x, y, z float64, queue bool) error
	IssuePatrol(unitID int, x, y, z float64, queue bool) error
	IssueFight(unitID int, x, y, z float64, queue bool) error
	IssueGuard(unitID int, targetUnitID int, queue bool) error
	IssueRepair(unitID int, targetUnitID int, queue bool) error
	SetFireState(unitID int, state int) error
	SetMoveState(unitID int, state int) error
	SendChat(text string) error
	Pause(paused bool) error
	SetSpeed(factor float64) error
}
