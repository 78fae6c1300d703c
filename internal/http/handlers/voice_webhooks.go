package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/internal/confirmation"
	observemetrics "github.com/mialabs/receptionist/internal/observability/metrics"
	"github.com/mialabs/receptionist/pkg/logging"
)

// confirmer is the slice of the state machine the webhooks need.
type confirmer interface {
	HandleCallOutcome(ctx context.Context, key confirmation.CorrelationKey, outcome string) error
	HandleReply(ctx context.Context, key confirmation.CorrelationKey, raw string) (appointment.Status, error)
}

// dedupeStore tracks handled provider event ids so redeliveries are dropped.
type dedupeStore interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// VoiceWebhookHandler receives the two callbacks registered on every outbound
// confirmation call: the spoken reply and the final call outcome.
type VoiceWebhookHandler struct {
	machine  confirmer
	dedupe   dedupeStore
	metrics  *observemetrics.ConfirmationMetrics
	logger   *logging.Logger
	provider string
}

// VoiceWebhookConfig wires a VoiceWebhookHandler.
type VoiceWebhookConfig struct {
	Machine confirmer
	Dedupe  dedupeStore
	Metrics *observemetrics.ConfirmationMetrics
	Logger  *logging.Logger
}

// NewVoiceWebhookHandler creates the webhook handler.
func NewVoiceWebhookHandler(cfg VoiceWebhookConfig) *VoiceWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VoiceWebhookHandler{
		machine:  cfg.Machine,
		dedupe:   cfg.Dedupe,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		provider: "voice",
	}
}

type replyWebhookPayload struct {
	EventID      string `json:"event_id"`
	CallID       string `json:"call_id"`
	Confirmation string `json:"confirmation"`
	PhoneNumber  string `json:"phone_number"`
}

// HandleConfirmation processes the spoken-reply callback.
func (h *VoiceWebhookHandler) HandleConfirmation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("confirmation", time.Since(start).Seconds())
	}()

	var payload replyWebhookPayload
	if err := decodeJSONBody(r, &payload); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"status": "fail", "message": "Invalid payload"})
		return
	}
	evtID := eventID(payload.EventID, payload.CallID, "reply")
	if h.seen(r.Context(), evtID) {
		w.WriteHeader(http.StatusOK)
		return
	}
	key := confirmation.CorrelationKey{
		AppointmentID: r.URL.Query().Get("appointmentId"),
		Phone:         payload.PhoneNumber,
	}

	status, err := h.machine.HandleReply(r.Context(), key, payload.Confirmation)
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		// The record may appear later (import race); leave the event unclaimed.
		respondJSON(w, http.StatusNotFound, map[string]string{"status": "fail", "message": "Appointment not found"})
	case errors.Is(err, confirmation.ErrAlreadyFinal):
		// Duplicate or late reply; the earlier decision stands.
		h.markDone(r.Context(), evtID)
		respondJSON(w, http.StatusOK, map[string]string{"status": "noop", "confirmationStatus": string(status)})
	case errors.Is(err, confirmation.ErrUnrecognizedReply):
		h.markDone(r.Context(), evtID)
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"status": "fail", "message": "Unrecognized reply"})
	case err != nil:
		// Transient failure: the id stays unclaimed so the redelivery retries.
		h.logger.Error("confirmation reply handling failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Confirmation handling failed"})
	default:
		h.markDone(r.Context(), evtID)
		respondJSON(w, http.StatusOK, map[string]string{"status": "success", "confirmationStatus": string(status)})
	}
}

type statusWebhookPayload struct {
	EventID     string `json:"event_id"`
	CallID      string `json:"call_id"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number"`
}

// HandleCallStatus processes the call-outcome callback.
func (h *VoiceWebhookHandler) HandleCallStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("status", time.Since(start).Seconds())
	}()

	var payload statusWebhookPayload
	if err := decodeJSONBody(r, &payload); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"status": "fail", "message": "Invalid payload"})
		return
	}
	evtID := eventID(payload.EventID, payload.CallID, "status")
	if h.seen(r.Context(), evtID) {
		w.WriteHeader(http.StatusOK)
		return
	}
	key := confirmation.CorrelationKey{
		AppointmentID: r.URL.Query().Get("appointmentId"),
		Phone:         payload.PhoneNumber,
	}

	err := h.machine.HandleCallOutcome(r.Context(), key, payload.Status)
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"status": "fail", "message": "Appointment not found"})
	case err != nil:
		h.logger.Error("call status handling failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Call status processing failed"})
	default:
		h.markDone(r.Context(), evtID)
		w.WriteHeader(http.StatusOK)
	}
}

// seen reports whether the event was already handled. The id is marked only
// after successful handling, so a transient failure leaves it unclaimed and
// the provider's redelivery gets another attempt. Lookup failures fail open:
// processing twice is recoverable, dropping an event is not.
func (h *VoiceWebhookHandler) seen(ctx context.Context, id string) bool {
	if h.dedupe == nil || id == "" {
		return false
	}
	processed, err := h.dedupe.AlreadyProcessed(ctx, h.provider, id)
	if err != nil {
		h.logger.Error("webhook dedupe lookup failed", "error", err)
		return false
	}
	if processed {
		h.logger.Info("dropping redelivered webhook", "event_id", id)
	}
	return processed
}

func (h *VoiceWebhookHandler) markDone(ctx context.Context, id string) {
	if h.dedupe == nil || id == "" {
		return
	}
	if _, err := h.dedupe.MarkProcessed(ctx, h.provider, id); err != nil {
		h.logger.Error("failed to mark webhook processed", "error", err, "event_id", id)
	}
}

func eventID(explicit, callID, kind string) string {
	if explicit != "" {
		return explicit
	}
	if callID != "" {
		return callID + ":" + kind
	}
	return ""
}
