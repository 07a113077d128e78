package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewAssignsIDAndRegistry(t *testing.T) {
	s := New(4)
	require.NotEmpty(t, s.ID)
	require.NotNil(t, s.Features)
	require.NotNil(t, s.Channels)
}

func TestTrackAndCancelPending(t *testing.T) {
	s := New(4)
	ctx, done := s.Track(context.Background(), "req-1", time.Second)
	defer done()

	require.True(t, s.CancelPending("req-1"))
	require.Error(t, ctx.Err())
}

func TestCancelAllCancelsEveryPendingRequest(t *testing.T) {
	s := New(4)
	ctx1, done1 := s.Track(context.Background(), "req-1", time.Second)
	defer done1()
	ctx2, done2 := s.Track(context.Background(), "req-2", time.Second)
	defer done2()

	s.CancelAll()

	require.Error(t, ctx1.Err())
	require.Error(t, ctx2.Err())
}

func TestExecutorBoundsConcurrency(t *testing.T) {
	exec := NewExecutor(1)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = exec.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := exec.Run(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)

	close(release)
}

func TestExecutorRunPropagatesError(t *testing.T) {
	exec := NewExecutor(2)
	wantErr := errors.New("boom")
	err := exec.Run(context.Background(), func(ctx context.Context) error { return wantErr })
	require.ErrorIs(t, err, wantErr)
}
