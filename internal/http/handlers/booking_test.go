package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/internal/calendar"
	"github.com/mialabs/receptionist/pkg/logging"
)

type fakeCalendar struct {
	slots     []string
	slotsErr  error
	createErr error
	created   []calendar.CreateAppointmentRequest
	createdID string
}

func (f *fakeCalendar) AvailableSlots(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return f.slots, f.slotsErr
}

func (f *fakeCalendar) CreateAppointment(_ context.Context, req calendar.CreateAppointmentRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	if f.createdID == "" {
		return "ghl-appt-1", nil
	}
	return f.createdID, nil
}

func newBookingHandler(t *testing.T, cal *fakeCalendar) (*BookingHandler, *appointment.MemoryStore) {
	t.Helper()
	store := appointment.NewMemoryStore()
	h := NewBookingHandler(BookingConfig{
		Calendar:  cal,
		Calendars: calendar.ServiceCalendars{"hydrafacial": "cal-1", "botox": "cal-2"},
		Store:     store,
		Logger:    logging.New("error"),
	})
	return h, store
}

func postBooking(t *testing.T, h *BookingHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/check-and-book", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.CheckAndBook(rec, req)
	return rec
}

func TestCheckAndBookValidation(t *testing.T) {
	valid := map[string]any{
		"name":    "Dana",
		"phone":   "+15551234567",
		"date":    "2025-07-04",
		"time":    "10:00 AM",
		"service": "Hydrafacial",
	}
	tests := []struct {
		name    string
		mutate  func(m map[string]any)
		status  int
		message string
	}{
		{
			name:    "missing service",
			mutate:  func(m map[string]any) { m["service"] = "" },
			status:  http.StatusBadRequest,
			message: "Missing service.",
		},
		{
			name:    "unknown service",
			mutate:  func(m map[string]any) { m["service"] = "Cryotherapy" },
			status:  http.StatusBadRequest,
			message: "Unknown service: Cryotherapy",
		},
		{
			name:    "missing name",
			mutate:  func(m map[string]any) { m["name"] = "  " },
			status:  http.StatusBadRequest,
			message: "Missing fields.",
		},
		{
			name:    "bad date format",
			mutate:  func(m map[string]any) { m["date"] = "07/04/2025" },
			status:  http.StatusBadRequest,
			message: "Date must be YYYY-MM-DD",
		},
		{
			name:    "bad time format",
			mutate:  func(m map[string]any) { m["time"] = "22:00" },
			status:  http.StatusBadRequest,
			message: "Time must be H:MM AM/PM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newBookingHandler(t, &fakeCalendar{})
			body := map[string]any{}
			for k, v := range valid {
				body[k] = v
			}
			tt.mutate(body)

			rec := postBooking(t, h, body)
			assert.Equal(t, tt.status, rec.Code)

			var resp bookingResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "fail", resp.Status)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestCheckAndBookSlotUnavailable(t *testing.T) {
	h, _ := newBookingHandler(t, &fakeCalendar{slots: []string{"2025-07-04T14:00:00+00:00"}})

	rec := postBooking(t, h, map[string]any{
		"name":    "Dana",
		"phone":   "+15551234567",
		"date":    "2025-07-04",
		"time":    "10:00 AM",
		"service": "Hydrafacial",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Selected time slot unavailable", resp.Message)
}

func TestCheckAndBookSuccessSeedsPendingRecord(t *testing.T) {
	slot := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05-07:00")
	cal := &fakeCalendar{slots: []string{slot}}
	h, store := newBookingHandler(t, cal)

	rec := postBooking(t, h, map[string]any{
		"name":    "Dana",
		"phone":   "+15551234567",
		"date":    "2025-07-04",
		"time":    "10:00 AM",
		"service": "Hydrafacial",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp bookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "ghl-appt-1", resp.AppointmentID)

	require.Len(t, cal.created, 1)
	assert.Equal(t, "cal-1", cal.created[0].CalendarID)
	assert.Equal(t, slot, cal.created[0].StartTime)

	// The upstream id keys the local record so webhooks can correlate by id.
	appt, err := store.GetByID(context.Background(), "ghl-appt-1")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, 0, appt.CallAttempts)
	assert.Equal(t, "Hydrafacial", appt.Service)
}

func TestCheckAndBookAcceptsFragmentedFields(t *testing.T) {
	slot := time.Date(2025, 7, 4, 14, 30, 0, 0, time.UTC).Format("2006-01-02T15:04:05-07:00")
	h, _ := newBookingHandler(t, &fakeCalendar{slots: []string{slot}})

	rec := postBooking(t, h, map[string]any{
		"name":    "Dana",
		"phone":   "+15551234567",
		"date":    []string{"2025-07-", "04"},
		"time":    []string{"2:30", " PM"},
		"service": "hydrafacial",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCheckAndBookCalendarFailure(t *testing.T) {
	slot := time.Date(2025, 7, 4, 10, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05-07:00")
	h, _ := newBookingHandler(t, &fakeCalendar{slots: []string{slot}, createErr: assert.AnError})

	rec := postBooking(t, h, map[string]any{
		"name":    "Dana",
		"phone":   "+15551234567",
		"date":    "2025-07-04",
		"time":    "10:00 AM",
		"service": "Hydrafacial",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTo24Hour(t *testing.T) {
	tests := []struct {
		in     string
		hour   int
		minute int
	}{
		{"10:00 AM", 10, 0},
		{"12:00 AM", 0, 0},
		{"12:30 PM", 12, 30},
		{"2:45 PM", 14, 45},
		{"11:59 PM", 23, 59},
	}
	for _, tt := range tests {
		hour, minute, err := to24Hour(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.hour, hour, tt.in)
		assert.Equal(t, tt.minute, minute, tt.in)
	}

	for _, bad := range []string{"10:00", "10 AM", "10:00 XM"} {
		_, _, err := to24Hour(bad)
		assert.Error(t, err, bad)
	}
}
