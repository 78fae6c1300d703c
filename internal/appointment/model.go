package appointment

import "time"

// Status is the confirmation lifecycle state of an appointment.
type Status string

const (
	StatusPending             Status = "pending"
	StatusConfirmed           Status = "confirmed"
	StatusCancelled           Status = "cancelled"
	StatusRescheduleRequested Status = "reschedule_requested"
	StatusSMSFallbackSent     Status = "sms_fallback_sent"
)

// Terminal reports whether no further confirmation activity is allowed.
// sms_fallback_sent still awaits a reply and is not terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusRescheduleRequested:
		return true
	}
	return false
}

// Valid reports whether s is a known confirmation status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusRescheduleRequested, StatusSMSFallbackSent:
		return true
	}
	return false
}

// Appointment is a booked visit subject to a confirmation cycle.
type Appointment struct {
	// ID is assigned by the store at creation and never changes.
	ID string
	// CalendarID is the upstream calendar this booking lives in.
	CalendarID string
	Name       string
	// Phone is the contact number in E.164, also the legacy correlation key.
	Phone   string
	Service string
	// ScheduledAt is the start of the visit, timezone-aware.
	ScheduledAt time.Time
	Status      Status
	// CallAttempts counts outbound confirmation calls that went unanswered.
	// It only ever grows and is capped by policy.
	CallAttempts int
	// NextAttemptAt is set while a retry call is scheduled.
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
