package concierge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBook_BookAndVoidByExecution(t *testing.T) {
	book := NewInMemoryBook()
	ctx := context.Background()
	when := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

	id1, err := book.Book(ctx, Appointment{ListingID: "apt-301", Visitor: "Dana", When: when, ExecutionID: "exec-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := book.Book(ctx, Appointment{ListingID: "apt-114", Visitor: "Lee", When: when, ExecutionID: "exec-2"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.Len(t, book.Appointments(), 2)

	// Voiding one execution leaves the other cycle's booking intact.
	require.NoError(t, book.VoidByExecution(ctx, "exec-1"))

	left := book.Appointments()
	require.Len(t, left, 1)
	assert.Equal(t, id2, left[0].ID)

	// Unknown execution is a no-op.
	require.NoError(t, book.VoidByExecution(ctx, "exec-unknown"))
	assert.Len(t, book.Appointments(), 1)
}

func TestInMemoryBook_PreservesExplicitID(t *testing.T) {
	book := NewInMemoryBook()

	id, err := book.Book(context.Background(), Appointment{ID: "fixed", ListingID: "apt-1"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
}

func TestCleanupVoidsByExecution(t *testing.T) {
	book := NewInMemoryBook()
	ctx := context.Background()

	_, err := book.Book(ctx, Appointment{ListingID: "apt-301", ExecutionID: "exec-1"})
	require.NoError(t, err)

	cleanup := Cleanup(book)
	require.NoError(t, cleanup(ctx, "exec-1"))
	assert.Empty(t, book.Appointments())

	// Nil book never errors.
	require.NoError(t, Cleanup(nil)(ctx, "exec-1"))
}
