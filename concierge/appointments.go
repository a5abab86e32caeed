package concierge

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convomesh/core"
)

// Appointment is one scheduled property visit. ExecutionID tags the cycle
// that created it so cleanup can void appointments of aborted cycles.
type Appointment struct {
	ID          string    `json:"id"`
	ListingID   string    `json:"listing_id"`
	Visitor     string    `json:"visitor"`
	When        time.Time `json:"when"`
	ExecutionID string    `json:"execution_id"`
}

// AppointmentBook is the scheduling boundary consumed by the schedule agent.
type AppointmentBook interface {
	// Book stores the appointment and returns its id. An appointment carrying
	// an explicit ID replaces any existing entry under that id, so callers
	// can re-book idempotently.
	Book(ctx context.Context, appt Appointment) (string, error)

	// VoidByExecution removes all appointments created by the given cycle.
	// Used as the compensation path when a cycle aborts mid-flight.
	VoidByExecution(ctx context.Context, executionID string) error
}

// Notifier delivers out-of-band notifications (e.g. to a property owner).
type Notifier interface {
	Notify(ctx context.Context, recipient, message string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, recipient, message string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, recipient, message string) error {
	return f(ctx, recipient, message)
}

// InMemoryBook is a volatile AppointmentBook for tests and demos. Safe for
// concurrent access.
type InMemoryBook struct {
	mu    sync.Mutex
	appts map[string]Appointment
}

// NewInMemoryBook constructs an empty appointment book.
func NewInMemoryBook() *InMemoryBook {
	return &InMemoryBook{appts: make(map[string]Appointment)}
}

// Book implements AppointmentBook.
func (b *InMemoryBook) Book(_ context.Context, appt Appointment) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if appt.ID == "" {
		appt.ID = core.NewID()
	}
	b.appts[appt.ID] = appt
	return appt.ID, nil
}

// VoidByExecution implements AppointmentBook.
func (b *InMemoryBook) VoidByExecution(_ context.Context, executionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, appt := range b.appts {
		if appt.ExecutionID == executionID {
			delete(b.appts, id)
		}
	}
	return nil
}

// Appointments returns a snapshot of all booked appointments.
func (b *InMemoryBook) Appointments() []Appointment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Appointment, 0, len(b.appts))
	for _, appt := range b.appts {
		out = append(out, appt)
	}
	return out
}

var _ AppointmentBook = (*InMemoryBook)(nil)
