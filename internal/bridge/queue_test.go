package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

func TestCommandQueueFIFOOrder(t *testing.T) {
	q := NewCommandQueue()
	require.NoError(t, q.Push(Command{Type: CmdMove}))
	require.NoError(t, q.Push(Command{Type: CmdStop}))

	var order []CommandKind
	q.DrainInto(func(c Command) { order = append(order, c.Type) })
	require.Equal(t, []CommandKind{CmdMove, CmdStop}, order)
}

func TestCommandQueueRejectsWhenFull(t *testing.T) {
	q := NewCommandQueue()
	for i := 0; i < CommandQueueCapacity; i++ {
		require.NoError(t, q.Push(Command{Type: CmdStop}))
	}
	err := q.Push(Command{Type: CmdStop})
	require.Error(t, err)
	require.True(t, gmerrors.Is(err, gmerrors.KindBackpressure))
}

func TestEventQueueCoalescesUpdates(t *testing.T) {
	q := NewEventQueue()
	q.Push(Event{Type: EventUpdate, Frame: 1})
	q.Push(Event{Type: EventUpdate, Frame: 2})
	q.Push(Event{Type: EventUnitCreated, Frame: 2})
	q.Push(Event{Type: EventUpdate, Frame: 3})

	events := q.Drain()
	require.Len(t, events, 2)
	require.Equal(t, EventUpdate, events[0].Type)
	require.Equal(t, int64(3), events[0].Frame)
	require.Equal(t, EventUnitCreated, events[1].Type)
}

func TestEventQueueDrainBlocksUntilPush(t *testing.T) {
	q := NewEventQueue()
	done := make(chan []Event, 1)
	go func() { done <- q.Drain() }()

	q.Push(Event{Type: EventInit})

	events := <-done
	require.Len(t, events, 1)
	require.Equal(t, EventInit, events[0].Type)
}

func TestEventQueueCloseUnblocksDrain(t *testing.T) {
	q := NewEventQueue()
	done := make(chan []Event, 1)
	go func() { done <- q.Drain() }()

	q.Close()

	events := <-done
	require.Nil(t, events)
}
