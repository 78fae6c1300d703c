package appointment

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func apptRow(id string, status Status, attempts int, next *time.Time) *pgxmock.Rows {
	now := time.Date(2025, 7, 3, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows([]string{
		"id", "calendar_id", "name", "phone", "service", "scheduled_at",
		"confirmation_status", "call_attempts", "next_attempt_at", "created_at", "updated_at",
	}).AddRow(id, "cal-1", "Dana", "+15551234567", "Hydrafacial", now.Add(24*time.Hour),
		string(status), attempts, next, now, now)
}

func TestPostgresCreateKeepsProvidedID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs("cal-abc", "cal-1", "Dana", "+15551234567", "Hydrafacial", pgxmock.AnyArg(), "pending", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Create(context.Background(), &Appointment{
		ID:          "cal-abc",
		CalendarID:  "cal-1",
		Name:        "Dana",
		Phone:       "+15551234567",
		Service:     "Hydrafacial",
		ScheduledAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "cal-abc", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateMintsID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "", "", "+15551234567", "", pgxmock.AnyArg(), "pending", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Create(context.Background(), &Appointment{Phone: "+15551234567", ScheduledAt: time.Now()})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetByID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").
		WithArgs("appt-1").
		WillReturnRows(apptRow("appt-1", StatusSMSFallbackSent, 2, nil))

	got, err := store.GetByID(context.Background(), "appt-1")
	require.NoError(t, err)
	assert.Equal(t, "appt-1", got.ID)
	assert.Equal(t, StatusSMSFallbackSent, got.Status)
	assert.Equal(t, 2, got.CallAttempts)
	assert.Nil(t, got.NextAttemptAt)
}

func TestPostgresGetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresTransitionStatusApplies(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", "confirmed", 1, []string{"pending", "sms_fallback_sent"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.TransitionStatus(context.Background(), "appt-1",
		[]Status{StatusPending, StatusSMSFallbackSent}, StatusConfirmed, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionStatusConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", "cancelled", 2, []string{"pending"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT 1 FROM appointments WHERE id").
		WithArgs("appt-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	err := store.TransitionStatus(context.Background(), "appt-1",
		[]Status{StatusPending}, StatusCancelled, 2)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("ghost", "cancelled", 0, []string{"pending"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT 1 FROM appointments WHERE id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}))

	err := store.TransitionStatus(context.Background(), "ghost",
		[]Status{StatusPending}, StatusCancelled, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresScheduleRetry(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2025, 7, 3, 14, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", 1, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.ScheduleRetry(context.Background(), "appt-1", 1, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScheduleRetryConflictOnNonPending(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now()
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1", 1, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT 1 FROM appointments WHERE id").
		WithArgs("appt-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	err := store.ScheduleRetry(context.Background(), "appt-1", 1, at)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresListDueRetries(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2025, 7, 3, 14, 30, 0, 0, time.UTC)
	next := now.Add(-time.Minute)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(now, 25).
		WillReturnRows(apptRow("appt-1", StatusPending, 1, &next))

	out, err := store.ListDueRetries(context.Background(), now, 25)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "appt-1", out[0].ID)
	assert.Equal(t, StatusPending, out[0].Status)
	assert.Equal(t, 1, out[0].CallAttempts)
	require.NotNil(t, out[0].NextAttemptAt)
}

func TestPostgresClearRetry(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.ClearRetry(context.Background(), "appt-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClearRetryAlreadyClaimed(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("appt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT 1 FROM appointments WHERE id").
		WithArgs("appt-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	assert.ErrorIs(t, store.ClearRetry(context.Background(), "appt-1"), ErrConflict)
}
