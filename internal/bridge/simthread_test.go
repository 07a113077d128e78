package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	movedUnit int
	movedTo   [3]float64
	builtDef  string
	failNext  bool
	paused    bool
	speed     float64
	lastChat  string
}

func (f *fakeEngine) IssueMove(unitID int, x, y, z float64, queue bool) error {
	f.movedUnit = unitID
	f.movedTo = [3]float64{x, y, z}
	return nil
}
func (f *fakeEngine) IssueStop(unitID int, queue bool) error { return nil }
func (f *fakeEngine) IssueAttack(unitID, targetID int, queue bool) error {
	if f.failNext {
		return errTest
	}
	return nil
}
func (f *fakeEngine) IssueBuild(unitID int, defName string, x, y, z float64, queue bool) error {
	f.builtDef = defName
	return nil
}
func (f *fakeEngine) IssuePatrol(unitID int, x, y, z float64, queue bool) error { return nil }
func (f *fakeEngine) IssueFight(unitID int, x, y, z float64, queue bool) error  { return nil }
func (f *fakeEngine) IssueGuard(unitID, targetID int, queue bool) error         { return nil }
func (f *fakeEngine) IssueRepair(unitID, targetID int, queue bool) error        { return nil }
func (f *fakeEngine) SetFireState(unitID, state int) error                      { return nil }
func (f *fakeEngine) SetMoveState(unitID, state int) error                      { return nil }
func (f *fakeEngine) SendChat(text string) error                                { f.lastChat = text; return nil }
func (f *fakeEngine) Pause(paused bool) error                                   { f.paused = paused; return nil }
func (f *fakeEngine) SetSpeed(factor float64) error                             { f.speed = factor; return nil }

var errTest = errors.New("engine refused command")

func TestSimThreadExecutesMoveCommand(t *testing.T) {
	engine := &fakeEngine{}
	commands := NewCommandQueue()
	events := NewEventQueue()
	st := NewSimThread(SimThreadConfig{Engine: engine, Commands: commands, Events: events, UpdateThrottleFrames: 1000})

	require.NoError(t, commands.Push(Command{Type: CmdMove, Fields: map[string]any{
		"unit_id": float64(7), "x": float64(1), "y": float64(2), "z": float64(3),
	}}))

	st.Tick(1)

	require.Equal(t, 7, engine.movedUnit)
	require.Equal(t, [3]float64{1, 2, 3}, engine.movedTo)

	evts := events.Drain()
	require.Len(t, evts, 1)
	require.Equal(t, EventCommandFinished, evts[0].Type)
}

func TestSimThreadEmitsCommandErrorOnUnknownType(t *testing.T) {
	engine := &fakeEngine{}
	commands := NewCommandQueue()
	events := NewEventQueue()
	st := NewSimThread(SimThreadConfig{Engine: engine, Commands: commands, Events: events, UpdateThrottleFrames: 1000})

	require.NoError(t, commands.Push(Command{Type: "teleport"}))
	st.Tick(1)

	evts := events.Drain()
	require.Len(t, evts, 1)
	require.Equal(t, EventCommandError, evts[0].Type)
	require.Equal(t, "teleport", evts[0].Fields["command"])
}

func TestSimThreadEmitsCommandErrorOnMissingFields(t *testing.T) {
	engine := &fakeEngine{}
	commands := NewCommandQueue()
	events := NewEventQueue()
	st := NewSimThread(SimThreadConfig{Engine: engine, Commands: commands, Events: events, UpdateThrottleFrames: 1000})

	require.NoError(t, commands.Push(Command{Type: CmdBuild, Fields: map[string]any{"unit_id": float64(1)}}))
	st.Tick(1)

	evts := events.Drain()
	require.Len(t, evts, 1)
	require.Equal(t, EventCommandError, evts[0].Type)
	require.Contains(t, evts[0].Fields["reason"], "def_name")
}

func TestSimThreadEmitsThrottledUpdate(t *testing.T) {
	engine := &fakeEngine{}
	commands := NewCommandQueue()
	events := NewEventQueue()
	st := NewSimThread(SimThreadConfig{Engine: engine, Commands: commands, Events: events, UpdateThrottleFrames: 30})

	for frame := int64(1); frame <= 29; frame++ {
		st.Tick(frame)
	}
	st.Tick(30)

	evts := events.Drain()
	require.Len(t, evts, 1)
	require.Equal(t, EventUpdate, evts[0].Type)
	require.Equal(t, int64(30), evts[0].Frame)
}

func TestSimThreadPropagatesEngineErrorAsCommandError(t *testing.T) {
	engine := &fakeEngine{failNext: true}
	commands := NewCommandQueue()
	events := NewEventQueue()
	st := NewSimThread(SimThreadConfig{Engine: engine, Commands: commands, Events: events, UpdateThrottleFrames: 1000})

	require.NoError(t, commands.Push(Command{Type: CmdAttack, Fields: map[string]any{
		"unit_id": float64(1), "target_id": float64(2),
	}}))
	st.Tick(1)

	evts := events.Drain()
	require.Len(t, evts, 1)
	require.Equal(t, EventCommandError, evts[0].Type)
	require.Equal(t, "engine refused command", evts[0].Fields["reason"])
}
