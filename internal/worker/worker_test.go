package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/config"
	"github.com/spec-kit/auth-service/internal/events"
	"github.com/spec-kit/auth-service/internal/service"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) SweepExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return 2, f.err
}

type sweepCounter struct {
	mu    sync.Mutex
	total int64
}

func (c *sweepCounter) RecordSweep(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += n
}

func (c *sweepCounter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func TestTokenSweeper_SweepsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sweeper := &fakeSweeper{}
	counter := &sweepCounter{}
	s := NewTokenSweeper(sweeper, 5*time.Millisecond, counter, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.GreaterOrEqual(t, counter.get(), int64(4))
}

func TestTokenSweeper_FailureKeepsRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sweeper := &fakeSweeper{err: errors.New("db down")}
	counter := &sweepCounter{}
	s := NewTokenSweeper(sweeper, 5*time.Millisecond, counter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, counter.get())
}

func TestTokenSweeper_DisabledReturnsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTokenSweeper(&fakeSweeper{}, 0, nil, nil)
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper should return")
	}
}

type blockingSubscriber struct {
	started chan struct{}
}

func (b *blockingSubscriber) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return nil
}

func TestStartNotificationWorker_RunsSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{})
	sub := &blockingSubscriber{started: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartNotificationWorker(ctx, notifications, sub, zap.NewNop())
		close(done)
	}()

	<-sub.started
	cancel()
	<-done

	// Handlers were registered on the dispatcher.
	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventUserCreated, Payload: 42})
	assert.Error(t, err)
}
