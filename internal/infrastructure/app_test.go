package infrastructure

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeServer struct {
	startErr error
	stopped  atomic.Bool
}

func (s *fakeServer) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	<-ctx.Done()
	return nil
}

func (s *fakeServer) Stop(context.Context) error {
	s.stopped.Store(true)
	return nil
}

func TestRunStopsAllServersWhenOneFails(t *testing.T) {
	healthy := &fakeServer{}
	broken := &fakeServer{startErr: errors.New("address in use")}
	app := NewApp([]Server{healthy, broken}, nil)

	err := app.Run(context.Background())

	assert.EqualError(t, err, "address in use")
	assert.True(t, healthy.stopped.Load())
	assert.True(t, broken.stopped.Load())
}

func TestRunReturnsOnCancel(t *testing.T) {
	srv := &fakeServer{}
	app := NewApp([]Server{srv}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.NoError(t, app.Run(ctx))
	assert.True(t, srv.stopped.Load())
}

func TestRunCleanupRunsInReverse(t *testing.T) {
	var order []int
	runCleanup([]func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	})()
	assert.Equal(t, []int{2, 1}, order)
}
