package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/convomesh/logging"
)

// PendingAction is a side effect deferred until the owning cycle is known to
// have succeeded (i.e. its context never became aborted).
type PendingAction func(ctx context.Context) error

// CleanupFunc compensates side effects already committed by an aborted cycle.
// It receives the executionID the effects were tagged with.
type CleanupFunc func(ctx context.Context, executionID string) error

// ExecutionContext carries the cancellation flag and deferred side effects of
// one processing cycle. Exactly zero or one non-aborted context exists per
// conversation key at any instant; the queue creates one at debounce-fire
// time and destroys it at cycle end.
//
// Cancellation is cooperative: Abort only sets a flag. Agents check
// IsAborted at defined checkpoints (before a side effect, after receiving a
// generation result, before the final send) and short-circuit themselves.
//
// Pending actions registered under an action id collapse last-write-wins, so
// a cycle that decides "notify owner" twice notifies once. Anonymous actions
// run after all named actions, in registration order.
type ExecutionContext struct {
	id      string
	key     ConversationKey
	cleanup CleanupFunc
	logger  logging.Logger

	mu          sync.Mutex
	aborted     bool
	cleanupDone bool
	named       map[string]PendingAction
	namedOrder  []string
	anonymous   []PendingAction
	sideEffects []string
}

// NewExecutionContext creates a context for one cycle with a fresh unique
// executionID. cleanup may be nil when the caller has nothing to compensate;
// a nil logger is replaced with a NoOpLogger.
func NewExecutionContext(key ConversationKey, cleanup CleanupFunc, logger logging.Logger) *ExecutionContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ExecutionContext{
		id:      NewID(),
		key:     key,
		cleanup: cleanup,
		logger:  logger,
		named:   map[string]PendingAction{},
	}
}

// ID returns the unique executionID for this cycle. Side-effecting calls made
// mid-cycle tag their writes with it so cleanup can find and reverse them.
func (ec *ExecutionContext) ID() string { return ec.id }

// Key returns the conversation key this cycle belongs to.
func (ec *ExecutionContext) Key() ConversationKey { return ec.key }

// Abort sets the cancellation flag. Idempotent; never interrupts in-flight
// work directly.
func (ec *ExecutionContext) Abort() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.aborted = true
}

// IsAborted reports whether the cancellation flag has been set.
func (ec *ExecutionContext) IsAborted() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.aborted
}

// AddPendingAction defers fn until the cycle completes without abort. With an
// actionID the action replaces any prior registration under that id while
// keeping the original position in execution order. Without an id it appends
// to the anonymous list executed after all named actions. No-op once the
// context is aborted.
func (ec *ExecutionContext) AddPendingAction(fn PendingAction, actionID ...string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.aborted {
		return
	}
	if len(actionID) > 0 && actionID[0] != "" {
		id := actionID[0]
		if _, exists := ec.named[id]; !exists {
			ec.namedOrder = append(ec.namedOrder, id)
		}
		ec.named[id] = fn
		return
	}
	ec.anonymous = append(ec.anonymous, fn)
}

// RecordSideEffect notes the identifier of a side effect already committed by
// this cycle, for audit and idempotency correlation. Recording the same id
// again is a no-op, so an iteration retried after a transient failure does
// not inflate the record.
func (ec *ExecutionContext) RecordSideEffect(id string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for _, existing := range ec.sideEffects {
		if existing == id {
			return
		}
	}
	ec.sideEffects = append(ec.sideEffects, id)
}

// SideEffects returns a copy of the recorded side effect identifiers.
func (ec *ExecutionContext) SideEffects() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]string, len(ec.sideEffects))
	copy(out, ec.sideEffects)
	return out
}

// ExecutePendingActions runs all deferred side effects: named actions in
// registration order, then anonymous actions in registration order. An error
// from one action is logged and does not stop the rest; if the cancellation
// flag becomes set mid-iteration, execution stops immediately. Only
// meaningful when the context is not aborted.
func (ec *ExecutionContext) ExecutePendingActions(ctx context.Context) {
	ec.mu.Lock()
	if ec.aborted {
		ec.mu.Unlock()
		return
	}
	actions := make([]PendingAction, 0, len(ec.namedOrder)+len(ec.anonymous))
	for _, id := range ec.namedOrder {
		actions = append(actions, ec.named[id])
	}
	actions = append(actions, ec.anonymous...)
	ec.mu.Unlock()

	for i, fn := range actions {
		if ec.IsAborted() {
			ec.logger.Warn("pending action execution interrupted by abort", "execution_id", ec.id, "remaining", len(actions)-i)
			return
		}
		if err := ec.runAction(ctx, fn); err != nil {
			ec.logger.Error("pending action failed", "execution_id", ec.id, "action_index", i, "error", err)
		}
	}
}

// runAction invokes one pending action converting a panic into an error so a
// misbehaving action cannot crash the queue.
func (ec *ExecutionContext) runAction(ctx context.Context, fn PendingAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pending action panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// RunCleanup invokes the cleanup function exactly once with this cycle's
// executionID. Only meaningful when the context ended aborted. Errors and
// panics are logged and swallowed; cleanup must never crash the queue.
func (ec *ExecutionContext) RunCleanup(ctx context.Context) {
	ec.mu.Lock()
	if ec.cleanupDone || ec.cleanup == nil {
		ec.mu.Unlock()
		return
	}
	ec.cleanupDone = true
	cleanup := ec.cleanup
	ec.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			ec.logger.Error("cleanup panicked", "execution_id", ec.id, "panic", r)
		}
	}()
	if err := cleanup(ctx, ec.id); err != nil {
		ec.logger.Error("cleanup failed", "execution_id", ec.id, "error", err)
	}
}
