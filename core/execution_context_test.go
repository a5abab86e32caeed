package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() ConversationKey {
	return ConversationKey{SessionID: "sess-1", Counterpart: "+15550100"}
}

func TestExecutionContext_AbortIsIdempotent(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	assert.False(t, ec.IsAborted())
	ec.Abort()
	ec.Abort()
	assert.True(t, ec.IsAborted())
}

func TestExecutionContext_UniqueIDs(t *testing.T) {
	a := NewExecutionContext(testKey(), nil, nil)
	b := NewExecutionContext(testKey(), nil, nil)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, testKey(), a.Key())
}

func TestExecutionContext_NamedActionsLastWriteWins(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	var order []string
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "notify-v1")
		return nil
	}, "notify-owner")
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "send")
		return nil
	}, "send-reply")
	// Replaces the first registration but keeps its position.
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "notify-v2")
		return nil
	}, "notify-owner")

	ec.ExecutePendingActions(context.Background())

	assert.Equal(t, []string{"notify-v2", "send"}, order)
}

func TestExecutionContext_AnonymousActionsRunAfterNamed(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	var order []string
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "anon")
		return nil
	})
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "named")
		return nil
	}, "reply")

	ec.ExecutePendingActions(context.Background())

	assert.Equal(t, []string{"named", "anon"}, order)
}

func TestExecutionContext_ActionErrorDoesNotStopRest(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	ran := false
	ec.AddPendingAction(func(context.Context) error { return errors.New("boom") }, "first")
	ec.AddPendingAction(func(context.Context) error { panic("worse") }, "second")
	ec.AddPendingAction(func(context.Context) error {
		ran = true
		return nil
	}, "third")

	ec.ExecutePendingActions(context.Background())

	assert.True(t, ran)
}

func TestExecutionContext_AbortSkipsPendingActions(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	ran := false
	ec.AddPendingAction(func(context.Context) error {
		ran = true
		return nil
	}, "send-reply")

	ec.Abort()
	ec.ExecutePendingActions(context.Background())

	assert.False(t, ran)
}

func TestExecutionContext_AddAfterAbortIsNoOp(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)
	ec.Abort()

	ec.AddPendingAction(func(context.Context) error {
		t.Fatal("must not run")
		return nil
	}, "late")

	// Even a fresh non-aborted view of the list would be empty.
	ec.ExecutePendingActions(context.Background())
}

func TestExecutionContext_MidIterationAbortStops(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	var order []string
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "first")
		ec.Abort()
		return nil
	}, "first")
	ec.AddPendingAction(func(context.Context) error {
		order = append(order, "second")
		return nil
	}, "second")

	ec.ExecutePendingActions(context.Background())

	assert.Equal(t, []string{"first"}, order)
}

func TestExecutionContext_RunCleanupExactlyOnce(t *testing.T) {
	calls := 0
	var gotID string
	ec := NewExecutionContext(testKey(), func(_ context.Context, executionID string) error {
		calls++
		gotID = executionID
		return nil
	}, nil)

	ec.Abort()
	ec.RunCleanup(context.Background())
	ec.RunCleanup(context.Background())

	require.Equal(t, 1, calls)
	assert.Equal(t, ec.ID(), gotID)
}

func TestExecutionContext_CleanupErrorsAndPanicsSwallowed(t *testing.T) {
	failing := NewExecutionContext(testKey(), func(context.Context, string) error {
		return errors.New("cleanup failed")
	}, nil)
	failing.RunCleanup(context.Background())

	panicking := NewExecutionContext(testKey(), func(context.Context, string) error {
		panic("cleanup panicked")
	}, nil)
	panicking.RunCleanup(context.Background())

	nilCleanup := NewExecutionContext(testKey(), nil, nil)
	nilCleanup.RunCleanup(context.Background())
}

func TestExecutionContext_SideEffects(t *testing.T) {
	ec := NewExecutionContext(testKey(), nil, nil)

	ec.RecordSideEffect("appointment:a1")
	ec.RecordSideEffect("appointment:a2")
	ec.RecordSideEffect("appointment:a1") // re-recording keeps a single entry

	got := ec.SideEffects()
	assert.Equal(t, []string{"appointment:a1", "appointment:a2"}, got)

	// Returned slice is a copy.
	got[0] = "mutated"
	assert.Equal(t, "appointment:a1", ec.SideEffects()[0])
}
