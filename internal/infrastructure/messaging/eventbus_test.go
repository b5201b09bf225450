package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/pkg/retry"
)

var appliedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func appliedEvent() assignment.ProposalAppliedEvent {
	return assignment.NewProposalAppliedEvent(assignment.AuditDiff{
		ProposalID: "p-1",
		AppliedAt:  appliedAt,
		Entries: []assignment.Assignment{
			{StudentID: "s-1", TeacherID: "t-2", Score: 71.5},
		},
	})
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventProposalApplied, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(appliedEvent()))
	require.NoError(t, bus.Publish(assignment.NewProposalCancelledEvent("p-2", "", appliedAt)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
}

func TestInMemoryEventBus_HandlerErrorsAndPanics(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	boom := errors.New("boom")
	var reached bool
	require.NoError(t, bus.Subscribe(shared.EventProposalApplied, func(shared.Event) error { return boom }))
	require.NoError(t, bus.Subscribe(shared.EventProposalApplied, func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.Subscribe(shared.EventProposalApplied, func(shared.Event) error { reached = true; return nil }))

	err := bus.Publish(appliedEvent())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.True(t, reached)
}

func TestInMemoryEventBus_AsyncAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { n.Add(1); return nil }))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(appliedEvent()))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(5), n.Load())
	assert.ErrorIs(t, bus.Publish(appliedEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventProposalApplied, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

func TestInMemoryEventBus_CloseDrainsQueuedDeliveries(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 1})

	release := make(chan struct{})
	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		<-release
		n.Add(1)
		return nil
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(appliedEvent()))
	}

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()

	// One delivery holds the only worker slot; the rest wait in the queue.
	assert.Never(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int32(10), n.Load())
}

func TestInMemoryEventBus_PublishConcurrentWithClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var delivered atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { delivered.Add(1); return nil }))

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if bus.Publish(appliedEvent()) == nil {
					accepted.Add(1)
				}
			}
		}()
	}
	require.NoError(t, bus.Close())
	wg.Wait()

	// Publish either fails with ErrEventBusClosed or its delivery completes
	// before Close returns.
	assert.Equal(t, accepted.Load(), delivered.Load())
}

func TestRedisEventBus_FansOutToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	newBus := func(id string) *RedisEventBus {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		b, err := NewRedisEventBus(ctx, RedisEventBusConfig{Client: client, InstanceID: id})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}
	a, b := newBus("a"), newBus("b")

	var (
		mu       sync.Mutex
		received []shared.Event
		localA   int
	)
	require.NoError(t, a.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		localA++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, b.SubscribeAll(func(e shared.Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		return nil
	}))

	require.NoError(t, a.Publish(appliedEvent()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, localA, "publisher must not receive its own broadcast")

	remote, ok := received[0].(*RemoteEvent)
	require.True(t, ok)
	assert.Equal(t, shared.EventProposalApplied, remote.EventType())
	assert.Equal(t, "p-1", remote.AggregateID())
	assert.True(t, appliedAt.Equal(remote.OccurredAt()))
	assert.Equal(t, "p-1", remote.Payload()["proposal_id"])
}

type recordingSink struct {
	mu    sync.Mutex
	fails int
	diffs []assignment.AuditDiff
}

func (s *recordingSink) WriteDiff(_ context.Context, diff assignment.AuditDiff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("audit store down")
	}
	s.diffs = append(s.diffs, diff)
	return nil
}

func TestAuditSubscriber_WritesAppliedDiff(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	sink := &recordingSink{fails: 1}
	sub := NewAuditSubscriber(sink,
		retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond)),
		nil)
	require.NoError(t, sub.Register(bus))

	require.NoError(t, bus.Publish(assignment.NewProposalCancelledEvent("p-x", "", appliedAt)))
	require.NoError(t, bus.Publish(appliedEvent()))

	require.Len(t, sink.diffs, 1)
	assert.Equal(t, "p-1", sink.diffs[0].ProposalID)
	assert.Equal(t, []assignment.Assignment{{StudentID: "s-1", TeacherID: "t-2", Score: 71.5}}, sink.diffs[0].Entries)
}

func TestAuditSubscriber_IgnoresRemoteAndRejectsUnknown(t *testing.T) {
	sink := &recordingSink{}
	sub := NewAuditSubscriber(sink, nil, nil)

	assert.NoError(t, sub.Handle(&RemoteEvent{Envelope: shared.EventEnvelope{Type: shared.EventProposalApplied}}))
	assert.Error(t, sub.Handle(assignment.NewProposalCancelledEvent("p", "", appliedAt)))
	assert.Empty(t, sink.diffs)
}
