package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
)

// ProcessFunc is the processing callback invoked per batch. It runs the full
// cycle (planning, agents, merge, delivery) and returns core.ErrAborted when
// it observed the context's cancellation flag.
type ProcessFunc func(ctx context.Context, batch core.Batch, execCtx *core.ExecutionContext) error

// Options configure a ConversationQueue.
type Options struct {
	// DebounceGap is the quiet period after the last event before a batch is
	// dispatched for processing.
	DebounceGap time.Duration
	// Cleanup compensates side effects of aborted or failed cycles, keyed by
	// executionID. Nil when the caller has nothing to compensate.
	Cleanup core.CleanupFunc
	// Logger receives queue lifecycle records.
	Logger logging.Logger
}

// WithDebounceGap overrides the default 500ms debounce gap.
func WithDebounceGap(d time.Duration) func(o *Options) {
	return func(o *Options) { o.DebounceGap = d }
}

// WithCleanup sets the compensation hook for aborted and failed cycles.
func WithCleanup(fn core.CleanupFunc) func(o *Options) {
	return func(o *Options) { o.Cleanup = fn }
}

// WithLogger sets the queue logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// keyState is the mutable per-conversation state: buffer, debounce timer,
// processing mark and the current ExecutionContext. All fields are owned by
// the per-entry mutex.
type keyState struct {
	mu         sync.Mutex
	key        core.ConversationKey
	buffer     []core.InboundEvent
	timer      *time.Timer
	processing bool
	current    *core.ExecutionContext
}

// ConversationQueue buffers inbound events per conversation key, debounces
// them into batches and guarantees at most one active processing cycle per
// key. Enqueue is fire-and-forget and safe for concurrent use.
type ConversationQueue struct {
	process ProcessFunc
	gap     time.Duration
	cleanup core.CleanupFunc
	logger  logging.Logger

	mu     sync.Mutex
	states map[string]*keyState
	closed bool

	wg sync.WaitGroup
}

// New constructs a queue around the processing callback. The default
// debounce gap is 500ms.
func New(process ProcessFunc, optFns ...func(o *Options)) *ConversationQueue {
	opts := Options{
		DebounceGap: 500 * time.Millisecond,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &ConversationQueue{
		process: process,
		gap:     opts.DebounceGap,
		cleanup: opts.Cleanup,
		logger:  opts.Logger,
		states:  make(map[string]*keyState),
	}
}

// Enqueue appends the event to the key's buffer and either (re)arms the
// debounce timer (idle key) or marks the active cycle aborted (processing
// key). The aborted cycle's events are not lost: the buffer is retained and
// re-batched together with this event.
func (q *ConversationQueue) Enqueue(key core.ConversationKey, event core.InboundEvent) {
	st, ok := q.state(key)
	if !ok {
		q.logger.Warn("queue is shut down, dropping event", "conversation", key.String())
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.buffer = append(st.buffer, event)

	if st.processing {
		if st.current != nil && !st.current.IsAborted() {
			st.current.Abort()
			q.logger.Info("new event during active cycle, aborting", "conversation", key.String(), "execution_id", st.current.ID(), "buffered", len(st.buffer))
		}
		return
	}

	q.armTimerLocked(st)
	q.logger.Debug("event buffered", "conversation", key.String(), "buffered", len(st.buffer))
}

// state returns the keyState for key, creating it lazily. ok is false once
// the queue has been shut down.
func (q *ConversationQueue) state(key core.ConversationKey) (*keyState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false
	}
	st, ok := q.states[key.String()]
	if !ok {
		st = &keyState{key: key}
		q.states[key.String()] = st
	}
	return st, true
}

// armTimerLocked (re)starts the debounce timer. Caller holds st.mu.
func (q *ConversationQueue) armTimerLocked(st *keyState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(q.gap, func() { q.fire(st) })
}

// fire snapshots the buffer into a batch, marks the key processing and runs
// one cycle. It is invoked on the debounce timer's goroutine.
func (q *ConversationQueue) fire(st *keyState) {
	st.mu.Lock()
	if st.processing || len(st.buffer) == 0 {
		st.mu.Unlock()
		return
	}
	events := make([]core.InboundEvent, len(st.buffer))
	copy(events, st.buffer)
	batch := core.Batch{Key: st.key, Events: events}

	execCtx := core.NewExecutionContext(st.key, q.cleanup, q.logger)
	st.processing = true
	st.current = execCtx
	st.timer = nil
	st.mu.Unlock()

	q.wg.Add(1)
	defer q.wg.Done()
	q.runCycle(st, batch, execCtx)
}

// runCycle invokes the processing callback and applies the outcome branch:
// aborted cycles keep the buffer and re-arm the timer, successful cycles
// commit pending actions and consume the batch, genuine failures compensate
// and drop the batch.
func (q *ConversationQueue) runCycle(st *keyState, batch core.Batch, execCtx *core.ExecutionContext) {
	ctx := context.Background()
	start := time.Now()
	err := q.safeProcess(ctx, batch, execCtx)

	log := q.logger
	outcome := "completed"
	var cycleErr error
	switch {
	case execCtx.IsAborted() || errors.Is(err, core.ErrAborted):
		outcome = "aborted"
		execCtx.RunCleanup(ctx)
		st.mu.Lock()
		st.processing = false
		st.current = nil
		q.armTimerLocked(st)
		buffered := len(st.buffer)
		st.mu.Unlock()
		log.Info("cycle aborted, re-batching", "conversation", st.key.String(), "execution_id", execCtx.ID(), "buffered", buffered, "duration", time.Since(start))

	case err != nil:
		outcome = "failed"
		cycleErr = err
		// Genuine failure: compensate whatever was committed and drop the
		// batch so a poison message cannot loop forever.
		execCtx.RunCleanup(ctx)
		st.mu.Lock()
		st.buffer = nil
		st.processing = false
		st.current = nil
		st.mu.Unlock()
		log.Error("cycle failed, discarding batch", "conversation", st.key.String(), "execution_id", execCtx.ID(), "events", len(batch.Events), "error", err, "duration", time.Since(start))

	default:
		execCtx.ExecutePendingActions(ctx)
		st.mu.Lock()
		// Consume only the batched events; anything that arrived while
		// pending actions ran stays buffered for the next cycle.
		if len(st.buffer) >= len(batch.Events) {
			st.buffer = st.buffer[len(batch.Events):]
		} else {
			st.buffer = nil
		}
		st.processing = false
		st.current = nil
		if len(st.buffer) > 0 {
			q.armTimerLocked(st)
		}
		st.mu.Unlock()
		log.Info("cycle completed", "conversation", st.key.String(), "execution_id", execCtx.ID(), "events", len(batch.Events), "duration", time.Since(start))
	}

	if cl, ok := log.(*logging.ConvoLogger); ok {
		cl.LogCycle(len(batch.Events), outcome, time.Since(start), cycleErr)
	}
}

// safeProcess shields the queue from a panicking callback.
func (q *ConversationQueue) safeProcess(ctx context.Context, batch core.Batch, execCtx *core.ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("processing callback panicked")
			q.logger.Error("processing callback panicked", "conversation", batch.Key.String(), "execution_id", execCtx.ID(), "panic", r)
		}
	}()
	return q.process(ctx, batch, execCtx)
}

// Pending returns the number of buffered events for a key. Intended for
// introspection and tests.
func (q *ConversationQueue) Pending(key core.ConversationKey) int {
	q.mu.Lock()
	st, ok := q.states[key.String()]
	q.mu.Unlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.buffer)
}

// Processing reports whether a cycle is currently active for the key.
func (q *ConversationQueue) Processing(key core.ConversationKey) bool {
	q.mu.Lock()
	st, ok := q.states[key.String()]
	q.mu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.processing
}

// Shutdown stops all debounce timers, rejects further events and waits for
// active cycles to finish or ctx to expire. Buffered events that never got a
// cycle are dropped.
func (q *ConversationQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	for _, st := range q.states {
		st.mu.Lock()
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.mu.Unlock()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
