package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/internal/calendar"
	"github.com/mialabs/receptionist/internal/confirmation"
	"github.com/mialabs/receptionist/pkg/logging"
)

// ErrOutsideCallWindow means the sweep was requested outside business hours.
var ErrOutsideCallWindow = errors.New("reminder: outside call window")

// upstream statuses that still need a confirmation call.
var remindableStatuses = map[string]bool{
	"new":       true,
	"booked":    true,
	"confirmed": true,
}

// Sweeper drives the confirmation machine over tomorrow's appointments. It is
// a thin layer: all state decisions live in the machine.
type Sweeper struct {
	store     appointment.Store
	machine   *confirmation.Machine
	calendar  *calendar.Client
	calendars calendar.ServiceCalendars
	window    confirmation.CallWindow
	logger    *logging.Logger
	now       func() time.Time
}

// Config wires a Sweeper.
type Config struct {
	Store     appointment.Store
	Machine   *confirmation.Machine
	Calendar  *calendar.Client
	Calendars calendar.ServiceCalendars
	Window    confirmation.CallWindow
	Logger    *logging.Logger
	Now       func() time.Time
}

// NewSweeper creates the reminder sweep driver.
func NewSweeper(cfg Config) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("reminder: store required")
	}
	if cfg.Machine == nil {
		return nil, fmt.Errorf("reminder: machine required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		store:     cfg.Store,
		machine:   cfg.Machine,
		calendar:  cfg.Calendar,
		calendars: cfg.Calendars,
		window:    cfg.Window,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Summary reports what one sweep did.
type Summary struct {
	Imported   int `json:"imported"`
	Dispatched int `json:"dispatched"`
	Deferred   int `json:"deferred"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// SweepTomorrow imports tomorrow's upstream calendar entries and places one
// confirmation call per pending appointment. One appointment's failure never
// stops the batch.
func (s *Sweeper) SweepTomorrow(ctx context.Context) (Summary, error) {
	if !s.window.Open(s.now()) {
		return Summary{}, ErrOutsideCallWindow
	}
	start, end := s.tomorrowWindow()
	summary := Summary{}
	if s.calendar != nil {
		summary.Imported = s.importUpstream(ctx, start, end)
	}
	appts, err := s.store.ListWindow(ctx, start, end)
	if err != nil {
		return summary, fmt.Errorf("reminder: list window: %w", err)
	}
	for i := range appts {
		appt := &appts[i]
		if appt.Status != appointment.StatusPending || appt.NextAttemptAt != nil {
			summary.Skipped++
			continue
		}
		res, err := s.machine.InitiateConfirmation(ctx, appt, s.window)
		switch {
		case err != nil:
			summary.Failed++
			s.logger.Error("reminder dispatch failed", "appointment_id", appt.ID, "error", err)
		case res.Deferred:
			summary.Deferred++
		case res.Dispatched:
			summary.Dispatched++
		}
	}
	return summary, nil
}

// SweepOne places a confirmation call for a single appointment id.
func (s *Sweeper) SweepOne(ctx context.Context, id string) (confirmation.DispatchResult, error) {
	if !s.window.Open(s.now()) {
		return confirmation.DispatchResult{}, ErrOutsideCallWindow
	}
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return confirmation.DispatchResult{}, err
	}
	return s.machine.InitiateConfirmation(ctx, appt, s.window)
}

// importUpstream makes sure every remindable upstream entry for the window has
// a local record keyed by the calendar's appointment id.
func (s *Sweeper) importUpstream(ctx context.Context, start, end time.Time) int {
	imported := 0
	for _, calID := range s.calendars.IDs() {
		entries, err := s.calendar.ListAppointments(ctx, calID, start, end)
		if err != nil {
			s.logger.Error("upstream list failed", "calendar_id", calID, "error", err)
			continue
		}
		for _, e := range entries {
			if !remindableStatuses[e.Status] {
				continue
			}
			phone := e.ContactPhone()
			if phone == "" {
				continue
			}
			if _, err := s.store.GetByID(ctx, e.ID); err == nil {
				continue
			} else if !errors.Is(err, appointment.ErrNotFound) {
				s.logger.Error("upstream lookup failed", "appointment_id", e.ID, "error", err)
				continue
			}
			scheduledAt, err := time.Parse(time.RFC3339, e.StartTime)
			if err != nil {
				s.logger.Warn("skipping upstream entry with bad start time",
					"appointment_id", e.ID, "start_time", e.StartTime)
				continue
			}
			_, err = s.store.Create(ctx, &appointment.Appointment{
				ID:          e.ID,
				CalendarID:  calID,
				Name:        e.Title,
				Phone:       phone,
				Service:     e.Title,
				ScheduledAt: scheduledAt,
				Status:      appointment.StatusPending,
			})
			if err != nil {
				s.logger.Error("upstream import failed", "appointment_id", e.ID, "error", err)
				continue
			}
			imported++
		}
	}
	return imported
}

func (s *Sweeper) tomorrowWindow() (time.Time, time.Time) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}
