package confirmation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/pkg/logging"
)

func TestDrainFiresDueRetries(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(t, appointment.StatusPending, 0)
	require.NoError(t, f.store.ScheduleRetry(context.Background(), appt.ID, 1, f.now.Add(-time.Minute)))

	w := NewRetryWorker(f.store, f.machine, logging.New("error"))
	fired := w.Drain(context.Background())
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, f.dispatcher.count())

	// The retry marker is consumed; a second sweep finds nothing.
	assert.Equal(t, 0, w.Drain(context.Background()))
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestDrainLeavesFutureRetriesAlone(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(t, appointment.StatusPending, 0)
	require.NoError(t, f.store.ScheduleRetry(context.Background(), appt.ID, 1, f.now.Add(time.Hour)))

	w := NewRetryWorker(f.store, f.machine, logging.New("error"))
	assert.Equal(t, 0, w.Drain(context.Background()))
	assert.Equal(t, 0, f.dispatcher.count())

	got, err := f.store.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextAttemptAt)
}

func TestDrainSkipsAppointmentsRepliedMeanwhile(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(t, appointment.StatusPending, 0)
	require.NoError(t, f.store.ScheduleRetry(context.Background(), appt.ID, 1, f.now.Add(-time.Minute)))

	// The customer confirms during the retry delay.
	_, err := f.machine.HandleReply(context.Background(), CorrelationKey{AppointmentID: appt.ID}, "yes")
	require.NoError(t, err)

	w := NewRetryWorker(f.store, f.machine, logging.New("error"))
	assert.Equal(t, 0, w.Drain(context.Background()))
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestDrainIgnoresCallWindow(t *testing.T) {
	f := newFixture(t)
	appt := f.seed(t, appointment.StatusPending, 0)
	require.NoError(t, f.store.ScheduleRetry(context.Background(), appt.ID, 1, f.now.Add(-time.Minute)))

	// Retries fire on their scheduled time regardless of business hours.
	w := NewRetryWorker(f.store, f.machine, logging.New("error"))
	assert.Equal(t, 1, w.Drain(context.Background()))
}

func TestDrainRespectsBatchSize(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		appt := f.seed(t, appointment.StatusPending, 0)
		require.NoError(t, f.store.ScheduleRetry(context.Background(), appt.ID, 1, f.now.Add(-time.Minute)))
	}

	w := NewRetryWorker(f.store, f.machine, logging.New("error")).WithBatchSize(2)
	assert.Equal(t, 2, w.Drain(context.Background()))
	assert.Equal(t, 1, w.Drain(context.Background()))
}
