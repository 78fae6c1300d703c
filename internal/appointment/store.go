package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no appointment matched the lookup.
	ErrNotFound = errors.New("appointment: not found")
	// ErrConflict means a conditional status update lost to a concurrent writer.
	ErrConflict = errors.New("appointment: status conflict")
)

// Store is the persistence boundary for appointment records. Status writes are
// conditional on the expected prior status so racing webhooks cannot resurrect
// a terminal appointment.
type Store interface {
	Create(ctx context.Context, appt *Appointment) (string, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	// ListWindow returns appointments scheduled inside [start, end).
	ListWindow(ctx context.Context, start, end time.Time) ([]Appointment, error)
	// FindOpenByPhone resolves the oldest non-terminal appointment for a phone
	// number inside a scheduling window. Legacy correlation path only.
	FindOpenByPhone(ctx context.Context, phone string, start, end time.Time) (*Appointment, error)
	// TransitionStatus moves an appointment to next if its current status is one
	// of expected, updating the attempt counter in the same write. Returns
	// ErrConflict when the current status is not in expected.
	TransitionStatus(ctx context.Context, id string, expected []Status, next Status, attempts int) error
	// ScheduleRetry records the attempt counter bump and the time the next
	// confirmation call should fire.
	ScheduleRetry(ctx context.Context, id string, attempts int, at time.Time) error
	// ListDueRetries returns pending appointments whose retry time has passed.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]Appointment, error)
	// ClearRetry claims a scheduled retry by unsetting it, without touching
	// status or attempts. Returns ErrConflict when no retry was set, so only
	// one claimant fires a due retry.
	ClearRetry(ctx context.Context, id string) error
}

func statusIn(s Status, set []Status) bool {
	for _, e := range set {
		if s == e {
			return true
		}
	}
	return false
}
