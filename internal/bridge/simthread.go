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

import "fmt"

// SimThreadConfig configures a SimThread.
type SimThreadConfig struct {
	Engine               EngineCallbacks
	Commands             *CommandQueue
	Events               *EventQueue
	UpdateThrottleFrames int // emit one update event every N frames; default 30
}

// SimThread is the engine-owned ABI dispatcher side of the Bridge (§4.4).
// Its Tick method is called once per engine frame from handleEvent; it
// never blocks and never touches the IPC socket directly.
type SimThread struct {
	engine   EngineCallbacks
	commands *CommandQueue
	events   *EventQueue
	throttle int
}

// NewSimThread creates a SimThread from cfg, defaulting UpdateThrottleFrames
// to 30 if unset.
func NewSimThread(cfg SimThreadConfig) *SimThread {
	throttle := cfg.UpdateThrottleFrames
	if throttle <= 0 {
		throttle = 30
	}
	return &SimThread{engine: cfg.Engine, commands: cfg.Commands, events: cfg.Events, throttle: throttle}
}

// Tick runs one frame's worth of sim-thread work: drain and execute queued
// commands, then emit a throttled update tick.
func (s *SimThread) Tick(frame int64) {
	s.commands.DrainInto(func(cmd Command) {
		s.execute(frame, cmd)
	})
	if frame%int64(s.throttle) == 0 {
		s.events.Push(Event{Type: EventUpdate, Frame: frame})
	}
}

func (s *SimThread) execute(frame int64, cmd Command) {
	if !knownCommands[cmd.Type] {
		s.commandError(frame, cmd, fmt.Sprintf("unknown command type %q", cmd.Type))
		return
	}

	var err error
	switch cmd.Type {
	case CmdMove:
		err = s.withUnitAndPos(cmd, s.engine.IssueMove)
	case CmdStop:
		err = s.withUnit(cmd, s.engine.IssueStop)
	case CmdAttack:
		err = s.withUnitAndTarget(cmd, s.engine.IssueAttack)
	case CmdBuild:
		err = s.issueBuild(cmd)
	case CmdPatrol:
		err = s.withUnitAndPos(cmd, s.engine.IssuePatrol)
	case CmdFight:
		err = s.withUnitAndPos(cmd, s.engine.IssueFight)
	case CmdGuard:
		err = s.withUnitAndTarget(cmd, s.engine.IssueGuard)
	case CmdRepair:
		err = s.withUnitAndTarget(cmd, s.engine.IssueRepair)
	case CmdSetFireState:
		err = s.withUnitAndIntState(cmd, s.engine.SetFireState)
	case CmdSetMoveState:
		err = s.withUnitAndIntState(cmd, s.engine.SetMoveState)
	case CmdSendChat:
		err = s.issueSendChat(cmd)
	case CmdPause:
		err = s.engine.Pause(true)
	case CmdUnpause:
		err = s.engine.Pause(false)
	case CmdSetSpeed:
		err = s.issueSetSpeed(cmd)
	}

	if err != nil {
		s.commandError(frame, cmd, err.Error())
		return
	}
	s.events.Push(Event{Type: EventCommandFinished, Frame: frame, Fields: map[string]any{"command": string(cmd.Type)}})
}

func (s *SimThread) commandError(frame int64, cmd Command, reason string) {
	s.events.Push(Event{Type: EventCommandError, Frame: frame, Fields: map[string]any{
		"command": string(cmd.Type),
		"reason":  reason,
	}})
}

func intField(fields map[string]any, key string) (int, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64) // JSON numbers decode as float64
	if !ok {
		return 0, false
	}
	return int(f), true
}

func floatField(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *SimThread) withUnit(cmd Command, fn func(unitID int, queue bool) error) error {
	unitID, ok := intField(cmd.Fields, "unit_id")
	if !ok {
		return fmt.Errorf("missing or invalid unit_id")
	}
	return fn(unitID, cmd.Queue)
}

func (s *SimThread) withUnitAndPos(cmd Command, fn func(unitID int, x, y, z float64, queue bool) error) error {
	unitID, ok := intField(cmd.Fields, "unit_id")
	if !ok {
		return fmt.Errorf("missing or invalid unit_id")
	}
	x, xok := floatField(cmd.Fields, "x")
	y, yok := floatField(cmd.Fields, "y")
	z, zok := floatField(cmd.Fields, "z")
	if !xok || !yok || !zok {
		return fmt.Errorf("missing or invalid position")
	}
	return fn(unitID, x, y, z, cmd.Queue)
}

func (s *SimThread) withUnitAndTarget(cmd Command, fn func(unitID, targetID int, queue bool) error) error {
	unitID, ok := intField(cmd.Fields, "unit_id")
	if !ok {
		return fmt.Errorf("missing or invalid unit_id")
	}
	targetID, ok := intField(cmd.Fields, "target_id")
	if !ok {
		return fmt.Errorf("missing or invalid target_id")
	}
	return fn(unitID, targetID, cmd.Queue)
}

func (s *SimThread) withUnitAndIntState(cmd Command, fn func(unitID, state int) error) error {
	unitID, ok := intField(cmd.Fields, "unit_id")
	if !ok {
		return fmt.Errorf("missing or invalid unit_id")
	}
	state, ok := intField(cmd.Fields, "state")
	if !ok {
		return fmt.Errorf("missing or invalid state")
	}
	return fn(unitID, state)
}

func (s *SimThread) issueBuild(cmd Command) error {
	unitID, ok := intField(cmd.Fields, "unit_id")
	if !ok {
		return fmt.Errorf("missing or invalid unit_id")
	}
	defName, ok := stringField(cmd.Fields, "def_name")
	if !ok {
		return fmt.Errorf("missing or invalid def_name")
	}
	x, xok := floatField(cmd.Fields, "x")
	y, yok := floatField(cmd.Fields, "y")
	z, zok := floatField(cmd.Fields, "z")
	if !xok || !yok || !zok {
		return fmt.Errorf("missing or invalid build position")
	}
	return s.engine.IssueBuild(unitID, defName, x, y, z, cmd.Queue)
}

func (s *SimThread) issueSendChat(cmd Command) error {
	text, ok := stringField(cmd.Fields, "text")
	if !ok {
		return fmt.Errorf("missing or invalid text")
	}
	return s.engine.SendChat(text)
}

func (s *SimThread) issueSetSpeed(cmd Command) error {
	factor, ok := floatField(cmd.Fields, "factor")
	if !ok {
		return fmt.Errorf("missing or invalid factor")
	}
	return s.engine.SetSpeed(factor)
}
