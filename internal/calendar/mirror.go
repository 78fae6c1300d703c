package calendar

import (
	"context"
	"fmt"

	"github.com/mialabs/receptionist/internal/appointment"
)

// upstream status names differ from the local lifecycle vocabulary.
var statusNames = map[appointment.Status]string{
	appointment.StatusPending:             "new",
	appointment.StatusConfirmed:           "confirmed",
	appointment.StatusCancelled:           "cancelled",
	appointment.StatusRescheduleRequested: "new",
}

// Mirror pushes terminal confirmation statuses back to the upstream calendar
// so front-desk staff see the same state the relay does. Failures are the
// caller's to log; the local record stays authoritative.
type Mirror struct {
	client *Client
}

// NewMirror creates a status mirror over the calendar client.
func NewMirror(client *Client) *Mirror {
	return &Mirror{client: client}
}

// MirrorStatus updates the upstream entry for the appointment.
func (m *Mirror) MirrorStatus(ctx context.Context, appt *appointment.Appointment, status appointment.Status) error {
	if m == nil || m.client == nil {
		return nil
	}
	name, ok := statusNames[status]
	if !ok {
		return fmt.Errorf("calendar: no upstream status for %q", status)
	}
	return m.client.UpdateStatus(ctx, appt.ID, name)
}
