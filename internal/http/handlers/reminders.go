package handlers

import (
	"errors"
	"net/http"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/internal/confirmation"
	"github.com/mialabs/receptionist/internal/reminder"
	"github.com/mialabs/receptionist/pkg/logging"
)

// RemindersHandler exposes the scheduler trigger.
type RemindersHandler struct {
	sweeper *reminder.Sweeper
	logger  *logging.Logger
}

// NewRemindersHandler creates the trigger handler.
func NewRemindersHandler(sweeper *reminder.Sweeper, logger *logging.Logger) *RemindersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &RemindersHandler{sweeper: sweeper, logger: logger}
}

type sendRemindersRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// SendReminders handles POST /send-reminders. With an appointmentId it targets
// one record; without, it sweeps tomorrow's window. Outside the call window
// the trigger is deferred with a distinct status, nothing is attempted.
func (h *RemindersHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	var req sendRemindersRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"status": "fail", "message": "Invalid request body."})
			return
		}
	}
	if req.AppointmentID == "" {
		req.AppointmentID = r.URL.Query().Get("appointmentId")
	}

	if req.AppointmentID != "" {
		h.sendOne(w, r, req.AppointmentID)
		return
	}

	summary, err := h.sweeper.SweepTomorrow(r.Context())
	if err != nil {
		if errors.Is(err, reminder.ErrOutsideCallWindow) {
			respondJSON(w, http.StatusTooManyRequests, map[string]string{"status": "deferred", "message": "Outside call window"})
			return
		}
		h.logger.Error("reminder sweep failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Failed to send reminders"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "summary": summary})
}

func (h *RemindersHandler) sendOne(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.sweeper.SweepOne(r.Context(), id)
	switch {
	case errors.Is(err, reminder.ErrOutsideCallWindow):
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"status": "deferred", "message": "Outside call window"})
	case errors.Is(err, appointment.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"status": "fail", "message": "Appointment not found"})
	case errors.Is(err, confirmation.ErrNotPending):
		respondJSON(w, http.StatusConflict, map[string]string{"status": "fail", "message": "Appointment is not pending confirmation"})
	case errors.Is(err, confirmation.ErrAttemptsExhausted):
		respondJSON(w, http.StatusConflict, map[string]string{"status": "fail", "message": "Call attempts exhausted"})
	case err != nil:
		h.logger.Error("reminder dispatch failed", "appointment_id", id, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Failed to send reminder"})
	case res.Deferred:
		respondJSON(w, http.StatusTooManyRequests, map[string]string{"status": "deferred", "message": "Outside call window"})
	default:
		respondJSON(w, http.StatusOK, map[string]string{"status": "success", "callId": res.CallID})
	}
}
