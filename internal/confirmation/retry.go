package confirmation

import (
	"context"
	"errors"
	"time"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/pkg/logging"
)

// RetryWorker re-dials appointments whose scheduled retry time has passed.
// Every candidate is re-validated against current status at fire time: a reply
// that landed during the two-hour delay cancels the retry. Retries are not
// gated by the call window.
type RetryWorker struct {
	store     appointment.Store
	machine   *Machine
	logger    *logging.Logger
	interval  time.Duration
	batchSize int
}

// NewRetryWorker creates the retry sweep loop.
func NewRetryWorker(store appointment.Store, machine *Machine, logger *logging.Logger) *RetryWorker {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryWorker{
		store:     store,
		machine:   machine,
		logger:    logger,
		interval:  time.Minute,
		batchSize: 25,
	}
}

func (w *RetryWorker) WithInterval(d time.Duration) *RetryWorker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *RetryWorker) WithBatchSize(n int) *RetryWorker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

// Run drains due retries until the context is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain fires every due retry once. One appointment's failure never blocks the
// rest of the batch, and a failed dial does not roll back the attempt counter.
func (w *RetryWorker) Drain(ctx context.Context) int {
	due, err := w.store.ListDueRetries(ctx, w.machine.now(), w.batchSize)
	if err != nil {
		w.logger.Error("retry fetch failed", "error", err)
		return 0
	}
	fired := 0
	for i := range due {
		appt := &due[i]
		if appt.Status != appointment.StatusPending {
			continue
		}
		if err := w.store.ClearRetry(ctx, appt.ID); err != nil {
			// A lost claim means another sweep got here first.
			if !errors.Is(err, appointment.ErrConflict) {
				w.logger.Error("clear retry failed", "error", err, "appointment_id", appt.ID)
			}
			continue
		}
		// Zero CallWindow: retries keep the provider's original ungated timing.
		res, err := w.machine.InitiateConfirmation(ctx, appt, CallWindow{})
		if err != nil {
			if errors.Is(err, ErrNotPending) || errors.Is(err, ErrAttemptsExhausted) {
				continue
			}
			w.logger.Error("retry call failed", "error", err, "appointment_id", appt.ID)
			continue
		}
		if res.Dispatched {
			fired++
		}
	}
	return fired
}
