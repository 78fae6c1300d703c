package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/pkg/logging"
)

func TestCalendarFor(t *testing.T) {
	s := ServiceCalendars{"Hydrafacial": "cal-1", "Botox ": "cal-2"}

	id, ok := s.CalendarFor("Hydrafacial")
	require.True(t, ok)
	assert.Equal(t, "cal-1", id)

	id, ok = s.CalendarFor("  hydrafacial ")
	require.True(t, ok)
	assert.Equal(t, "cal-1", id)

	id, ok = s.CalendarFor("BOTOX")
	require.True(t, ok)
	assert.Equal(t, "cal-2", id)

	_, ok = s.CalendarFor("Cryotherapy")
	assert.False(t, ok)
}

func TestIDsDeterministic(t *testing.T) {
	s := ServiceCalendars{"b": "cal-2", "a": "cal-1", "c": "cal-3"}
	assert.Equal(t, []string{"cal-1", "cal-2", "cal-3"}, s.IDs())
}

func TestIDsDistinct(t *testing.T) {
	// Two services on one calendar must not sweep that calendar twice.
	s := ServiceCalendars{"Hydrafacial": "cal-1", "Dermaplaning": "cal-1", "Botox": "cal-2"}
	assert.Equal(t, []string{"cal-1", "cal-2"}, s.IDs())
}

func TestMirrorStatus(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL, Logger: logging.New("error")})
	require.NoError(t, err)
	m := NewMirror(c)

	appt := &appointment.Appointment{ID: "ghl-1"}
	require.NoError(t, m.MirrorStatus(context.Background(), appt, appointment.StatusConfirmed))
	assert.Equal(t, "/appointments/ghl-1/status", gotPath)
	assert.Equal(t, "confirmed", gotBody["status"])

	// Reschedule requests reopen the upstream entry for the front desk.
	require.NoError(t, m.MirrorStatus(context.Background(), appt, appointment.StatusRescheduleRequested))
	assert.Equal(t, "new", gotBody["status"])
}

func TestMirrorStatusNilSafe(t *testing.T) {
	var m *Mirror
	assert.NoError(t, m.MirrorStatus(context.Background(), &appointment.Appointment{ID: "x"}, appointment.StatusConfirmed))
	assert.NoError(t, NewMirror(nil).MirrorStatus(context.Background(), &appointment.Appointment{ID: "x"}, appointment.StatusConfirmed))
}

func TestMirrorStatusUnknownStatus(t *testing.T) {
	c, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: "https://rest.example.com", Logger: logging.New("error")})
	require.NoError(t, err)
	err = NewMirror(c).MirrorStatus(context.Background(), &appointment.Appointment{ID: "x"}, appointment.StatusSMSFallbackSent)
	assert.Error(t, err)
}
