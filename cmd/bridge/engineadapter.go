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

package main

import "fmt"

// engineAdapter implements bridge.EngineCallbacks against the engine's
// real callback vtable. The vtable itself is hundreds of C function
// pointers handed to init() by the engine and is outside this module's
// reach without the engine's AI interface headers; each method below is
// the single cgo call site that would dispatch into it.
//
// TODO: wire each method to its corresponding vtable entry once the
// engine AI interface headers are vendored alongside this command.
type engineAdapter struct{}

func newEngineAdapter() *engineAdapter {
	return &engineAdapter{}
}

func (e *engineAdapter) IssueMove(unitID int, x, y, z float64, queue bool) error {
	return fmt.Errorf("engine vtable not wired: move")
}

func (e *engineAdapter) IssueStop(unitID int, queue bool) error {
	return fmt.Errorf("engine vtable not wired: stop")
}

func (e *engineAdapter) IssueAttack(unitID, targetID int, queue bool) error {
	return fmt.Errorf("engine vtable not wired: attack")
}

func (e *engineAdapter) IssueBuild(unitID int, defName string, x, y, z float64, queue bool) error {
	return fmt.Errorf("engine vtable not wired: build")
}

func (e *engineAdapter) IssuePatrol(unitID int, x, y, z float64, queue bool) error {
	return fmt.Errorf("engine vtable not wired: patrol")
}

func (e *engineAdapter) IssueFight(unitID int, x, y, z float64, queue bool) error {
	return fmt.Errorf("engine vtable not wired: fight")
}

func (e *engineAdapter) IssueGuard(unitID, targetID int, queue bool) error {
	return fmt.Errorf("engine vtable not wired: guard")
}

func (e *engineAdapter) IssueRepair(unitID, targetID int, queue bool) error {
	return fmt.Errorf("engine vtable not wired: repair")
}

func (e *engineAdapter) SetFireState(unitID, state int) error {
	return fmt.Errorf("engine vtable not wired: set_fire_state")
}

func (e *engineAdapter) SetMoveState(unitID, state int) error {
	return fmt.Errorf("engine vtable not wired: set_move_state")
}

func (e *engineAdapter) SendChat(text string) error {
	return fmt.Errorf("engine vtable not wired: send_chat")
}

func (e *engineAdapter) Pause(paused bool) error {
	return fmt.Errorf("engine vtable not wired: pause")
}

func (e *engineAdapter) SetSpeed(factor float64) error {
	return fmt.Errorf("engine vtable not wired: set_speed")
}
