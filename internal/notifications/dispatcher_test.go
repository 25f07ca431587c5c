package notifications

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatwarden/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type markerKey struct {
	moderatorID int64
	ruleID      uint
}

type fakeMarkers struct {
	mu   sync.Mutex
	seen map[markerKey]time.Time
	err  error
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{seen: make(map[markerKey]time.Time)}
}

func (f *fakeMarkers) Advance(_ context.Context, moderatorID int64, ruleID uint, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	k := markerKey{moderatorID, ruleID}
	if cur, ok := f.seen[k]; !ok || ts.After(cur) {
		f.seen[k] = ts
	}
	return nil
}

func (f *fakeMarkers) get(moderatorID int64, ruleID uint) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.seen[markerKey{moderatorID, ruleID}]
	return ts, ok
}

func testJob(moderatorID int64, detectedAt time.Time) Job {
	return Job{
		ModeratorID: moderatorID,
		RuleID:      3,
		DetectedAt:  detectedAt,
		Payload:     Payload{Type: PayloadTypeViolation, RuleID: 3, Category: models.CategoryBan, DetectedAt: detectedAt},
	}
}

func TestDispatcher_DeliverAdvancesMarkerOnSuccess(t *testing.T) {
	markers := newFakeMarkers()
	var sent int32
	d := NewDispatcher(TransportFunc(func(context.Context, int64, Payload) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}), markers, DispatcherConfig{MaxAttempts: 3})

	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, d.Deliver(context.Background(), testJob(5, at)))

	assert.EqualValues(t, 1, atomic.LoadInt32(&sent))
	got, ok := markers.get(5, 3)
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	markers := newFakeMarkers()
	var calls int32
	d := NewDispatcher(TransportFunc(func(context.Context, int64, Payload) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("timeout")
		}
		return nil
	}), markers, DispatcherConfig{MaxAttempts: 5, Backoff: time.Millisecond})

	require.NoError(t, d.Deliver(context.Background(), testJob(5, time.Now().UTC())))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	_, ok := markers.get(5, 3)
	assert.True(t, ok)
}

func TestDispatcher_FailureLeavesMarkerUntouched(t *testing.T) {
	markers := newFakeMarkers()
	earlier := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, markers.Advance(context.Background(), 5, 3, earlier))

	d := NewDispatcher(TransportFunc(func(context.Context, int64, Payload) error {
		return errors.New("unreachable")
	}), markers, DispatcherConfig{MaxAttempts: 2, Backoff: time.Millisecond})

	err := d.Deliver(context.Background(), testJob(5, earlier.Add(time.Hour)))
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeTransport))

	got, _ := markers.get(5, 3)
	assert.True(t, got.Equal(earlier))
}

func TestDispatcher_CancelledContextStopsRetrying(t *testing.T) {
	var calls int32
	d := NewDispatcher(TransportFunc(func(context.Context, int64, Payload) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("down")
	}), newFakeMarkers(), DispatcherConfig{MaxAttempts: 10, Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := d.Deliver(ctx, testJob(1, time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDispatcher_WorkersDrainQueueOnClose(t *testing.T) {
	markers := newFakeMarkers()
	var sent int32
	d := NewDispatcher(TransportFunc(func(context.Context, int64, Payload) error {
		atomic.AddInt32(&sent, 1)
		return nil
	}), markers, DispatcherConfig{Workers: 3, QueueSize: 50, MaxAttempts: 1})
	d.Start(context.Background())

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		require.NoError(t, d.Enqueue(testJob(int64(i%4), base.Add(time.Duration(i)*time.Second))))
	}
	d.Close()

	assert.EqualValues(t, 20, atomic.LoadInt32(&sent))
	assert.Equal(t, 0, d.Pending())
	assert.ErrorIs(t, d.Enqueue(testJob(1, base)), ErrDispatcherClosed)

	// markers end at the newest detection per moderator regardless of worker order
	got, ok := markers.get(3, 3)
	require.True(t, ok)
	assert.True(t, got.Equal(base.Add(19*time.Second)))
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	d := NewDispatcher(TransportFunc(func(context.Context, int64, Payload) error { return nil }),
		newFakeMarkers(), DispatcherConfig{QueueSize: 2})

	require.NoError(t, d.Enqueue(testJob(1, time.Now())))
	require.NoError(t, d.Enqueue(testJob(2, time.Now())))
	assert.ErrorIs(t, d.Enqueue(testJob(3, time.Now())), ErrQueueFull)
	assert.Equal(t, 2, d.Pending())
}

func TestMultiTransport(t *testing.T) {
	var a, b int32
	ok := TransportFunc(func(context.Context, int64, Payload) error { atomic.AddInt32(&a, 1); return nil })
	bad := TransportFunc(func(context.Context, int64, Payload) error { atomic.AddInt32(&b, 1); return errors.New("dm blocked") })

	assert.NoError(t, MultiTransport{ok, nil}.Send(context.Background(), 1, Payload{}))
	err := MultiTransport{ok, bad}.Send(context.Background(), 1, Payload{})
	assert.ErrorContains(t, err, "dm blocked")
	assert.EqualValues(t, 2, atomic.LoadInt32(&a))
	assert.EqualValues(t, 1, atomic.LoadInt32(&b))
}

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffFor(100*time.Millisecond, 1))
	assert.Equal(t, 400*time.Millisecond, backoffFor(100*time.Millisecond, 3))
	assert.Equal(t, maxBackoff, backoffFor(time.Second, 40))
	assert.Zero(t, backoffFor(0, 2))
}
