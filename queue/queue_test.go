package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
)

func testKey(counterpart string) core.ConversationKey {
	return core.ConversationKey{SessionID: "sess", Counterpart: counterpart}
}

func event(text string) core.InboundEvent {
	return core.InboundEvent{Text: text, ReceivedAt: time.Now()}
}

// recorder collects the batches handed to the processing callback.
type recorder struct {
	mu      sync.Mutex
	batches []core.Batch
}

func (r *recorder) add(b core.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) get() []core.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestQueue_DebounceCoalescesBurst(t *testing.T) {
	rec := &recorder{}
	q := New(func(_ context.Context, batch core.Batch, _ *core.ExecutionContext) error {
		rec.add(batch)
		return nil
	}, WithDebounceGap(40*time.Millisecond))
	defer q.Shutdown(context.Background())

	key := testKey("+1")
	q.Enqueue(key, event("hi"))
	q.Enqueue(key, event("anyone"))
	q.Enqueue(key, event("there?"))

	waitFor(t, func() bool { return len(rec.get()) == 1 }, "expected one batch")

	batch := rec.get()[0]
	assert.Equal(t, "hi\nanyone\nthere?", batch.Text())
	assert.Equal(t, 0, q.Pending(key))
}

func TestQueue_EventResetsTimer(t *testing.T) {
	rec := &recorder{}
	q := New(func(_ context.Context, batch core.Batch, _ *core.ExecutionContext) error {
		rec.add(batch)
		return nil
	}, WithDebounceGap(80*time.Millisecond))
	defer q.Shutdown(context.Background())

	key := testKey("+1")
	q.Enqueue(key, event("one"))
	time.Sleep(40 * time.Millisecond)
	q.Enqueue(key, event("two"))
	time.Sleep(40 * time.Millisecond)

	// 80ms have elapsed since the first event but only 40ms since the
	// second; nothing may have fired yet.
	assert.Empty(t, rec.get())

	waitFor(t, func() bool { return len(rec.get()) == 1 }, "expected one batch after quiet period")
	assert.Len(t, rec.get()[0].Events, 2)
}

func TestQueue_IndependentKeys(t *testing.T) {
	rec := &recorder{}
	q := New(func(_ context.Context, batch core.Batch, _ *core.ExecutionContext) error {
		rec.add(batch)
		return nil
	}, WithDebounceGap(30*time.Millisecond))
	defer q.Shutdown(context.Background())

	q.Enqueue(testKey("+1"), event("for one"))
	q.Enqueue(testKey("+2"), event("for two"))

	waitFor(t, func() bool { return len(rec.get()) == 2 }, "expected two batches")

	counterparts := map[string]bool{}
	for _, b := range rec.get() {
		counterparts[b.Key.Counterpart] = true
	}
	assert.True(t, counterparts["+1"])
	assert.True(t, counterparts["+2"])
}

func TestQueue_MidCycleEventAbortsAndRebatches(t *testing.T) {
	var (
		rec        recorder
		mu         sync.Mutex
		cleanups   []string
		firstID    string
		inCycle    = make(chan struct{})
		release    = make(chan struct{})
		firstEntry sync.Once
	)

	process := func(_ context.Context, batch core.Batch, execCtx *core.ExecutionContext) error {
		rec.add(batch)
		var first bool
		firstEntry.Do(func() {
			first = true
			mu.Lock()
			firstID = execCtx.ID()
			mu.Unlock()
		})
		if first {
			close(inCycle)
			<-release
			if execCtx.IsAborted() {
				return core.ErrAborted
			}
		}
		return nil
	}
	cleanup := func(_ context.Context, executionID string) error {
		mu.Lock()
		defer mu.Unlock()
		cleanups = append(cleanups, executionID)
		return nil
	}

	q := New(process, WithDebounceGap(20*time.Millisecond), WithCleanup(cleanup))
	defer q.Shutdown(context.Background())

	key := testKey("+1")
	q.Enqueue(key, event("first"))

	<-inCycle
	require.True(t, q.Processing(key))

	// A new event during the active cycle aborts it instead of starting a
	// parallel one.
	q.Enqueue(key, event("second"))
	close(release)

	waitFor(t, func() bool { return len(rec.get()) == 2 }, "expected re-batched second cycle")

	batches := rec.get()
	assert.Equal(t, "first", batches[0].Text())
	// The retained buffer grows into the next batch, old events first.
	assert.Equal(t, "first\nsecond", batches[1].Text())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, cleanups, 1)
	assert.Equal(t, firstID, cleanups[0])
}

func TestQueue_SuccessRunsPendingActions(t *testing.T) {
	var sent []string
	var mu sync.Mutex

	q := New(func(_ context.Context, batch core.Batch, execCtx *core.ExecutionContext) error {
		text := batch.Text()
		execCtx.AddPendingAction(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			sent = append(sent, text)
			return nil
		}, "send-reply")
		return nil
	}, WithDebounceGap(20*time.Millisecond))
	defer q.Shutdown(context.Background())

	key := testKey("+1")
	q.Enqueue(key, event("hello"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1
	}, "expected deferred send to run")

	mu.Lock()
	assert.Equal(t, []string{"hello"}, sent)
	mu.Unlock()
}

func TestQueue_GenuineFailureDropsBatchAndCompensates(t *testing.T) {
	var (
		mu       sync.Mutex
		calls    int
		cleanups int
	)

	q := New(func(context.Context, core.Batch, *core.ExecutionContext) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("model hard down")
	},
		WithDebounceGap(20*time.Millisecond),
		WithCleanup(func(context.Context, string) error {
			mu.Lock()
			defer mu.Unlock()
			cleanups++
			return nil
		}),
	)
	defer q.Shutdown(context.Background())

	key := testKey("+1")
	q.Enqueue(key, event("poison"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, "expected one processing attempt")

	// The batch is dropped, not retried: no second attempt and an empty
	// buffer.
	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cleanups)
	mu.Unlock()
	assert.Equal(t, 0, q.Pending(key))
	assert.False(t, q.Processing(key))

	// The key remains usable afterwards.
	q.Enqueue(key, event("fresh"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, "expected the key to accept new events after a failure")
}

func TestQueue_PanicInCallbackIsContained(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	q := New(func(context.Context, core.Batch, *core.ExecutionContext) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("agent went sideways")
		}
		return nil
	}, WithDebounceGap(20*time.Millisecond))
	defer q.Shutdown(context.Background())

	key := testKey("+1")
	q.Enqueue(key, event("boom"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, "expected the panicking cycle to run")

	// Queue still works after the panic.
	q.Enqueue(key, event("still alive"))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, "expected a later cycle to run")
}

func TestQueue_ShutdownRejectsNewEvents(t *testing.T) {
	rec := &recorder{}
	q := New(func(_ context.Context, batch core.Batch, _ *core.ExecutionContext) error {
		rec.add(batch)
		return nil
	}, WithDebounceGap(10*time.Millisecond))

	require.NoError(t, q.Shutdown(context.Background()))

	q.Enqueue(testKey("+1"), event("too late"))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.get())
}

func TestQueue_ShutdownWaitsForActiveCycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	q := New(func(context.Context, core.Batch, *core.ExecutionContext) error {
		close(started)
		<-release
		close(finished)
		return nil
	}, WithDebounceGap(10*time.Millisecond))

	q.Enqueue(testKey("+1"), event("slow"))
	<-started

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	select {
	case <-finished:
	default:
		t.Fatal("shutdown returned before the active cycle finished")
	}
}

func TestQueue_ShutdownTimeout(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	q := New(func(context.Context, core.Batch, *core.ExecutionContext) error {
		close(started)
		<-release
		return nil
	}, WithDebounceGap(10*time.Millisecond))

	q.Enqueue(testKey("+1"), event("stuck"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Shutdown(ctx), context.DeadlineExceeded)
}

// syncBuffer is an io.Writer safe for the timer goroutine to write to.
type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestQueue_CycleRecordEmitted(t *testing.T) {
	buf := &syncBuffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: buf})

	q := New(func(context.Context, core.Batch, *core.ExecutionContext) error {
		return nil
	}, WithDebounceGap(20*time.Millisecond), WithLogger(logger))
	defer q.Shutdown(context.Background())

	q.Enqueue(testKey("+1"), event("hi"))
	q.Enqueue(testKey("+1"), event("there"))

	waitFor(t, func() bool { return strings.Contains(buf.String(), "Cycle completed") }, "expected a cycle record")
	out := buf.String()
	assert.Contains(t, out, `"outcome":"completed"`)
	assert.Contains(t, out, `"event_count":2`)
}

func TestQueue_FailedCycleRecordCarriesError(t *testing.T) {
	buf := &syncBuffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: buf})

	q := New(func(context.Context, core.Batch, *core.ExecutionContext) error {
		return errors.New("model offline")
	}, WithDebounceGap(20*time.Millisecond), WithLogger(logger))
	defer q.Shutdown(context.Background())

	q.Enqueue(testKey("+1"), event("hi"))

	waitFor(t, func() bool { return strings.Contains(buf.String(), "Cycle failed") }, "expected a failed cycle record")
	out := buf.String()
	assert.Contains(t, out, `"outcome":"failed"`)
	assert.Contains(t, out, "model offline")
}
