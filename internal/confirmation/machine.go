package confirmation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mialabs/receptionist/internal/appointment"
	observemetrics "github.com/mialabs/receptionist/internal/observability/metrics"
	"github.com/mialabs/receptionist/internal/voice"
	"github.com/mialabs/receptionist/pkg/logging"
)

var (
	// ErrNotPending means the appointment is past the point where a
	// confirmation call makes sense.
	ErrNotPending = errors.New("confirmation: appointment not pending")
	// ErrAttemptsExhausted means the call budget for the appointment is spent.
	ErrAttemptsExhausted = errors.New("confirmation: call attempts exhausted")
	// ErrAlreadyFinal means a reply arrived for an appointment whose status is
	// terminal. Treated as an idempotent no-op by callers.
	ErrAlreadyFinal = errors.New("confirmation: appointment already finalized")
	// ErrUnrecognizedReply means the spoken or typed reply mapped to nothing.
	ErrUnrecognizedReply = errors.New("confirmation: unrecognized reply")
)

// Call outcomes the voice provider reports on the status callback.
const (
	OutcomeCompleted = "completed"
	OutcomeNoAnswer  = "no-answer"
	OutcomeBusy      = "busy"
)

// phoneLookupHorizon bounds the legacy phone-only correlation search.
// Reminder calls go out the day before the visit, so the open appointment is
// always within two days of the webhook.
const phoneLookupHorizon = 48 * time.Hour

// CorrelationKey identifies the appointment an inbound webhook belongs to.
// The appointment ID is injected into every callback URL; the phone number is
// a deprecated fallback for providers that drop query parameters.
type CorrelationKey struct {
	AppointmentID string
	Phone         string
}

func (k CorrelationKey) empty() bool {
	return k.AppointmentID == "" && k.Phone == ""
}

// CallDispatcher places one outbound confirmation call.
type CallDispatcher interface {
	PlaceCall(ctx context.Context, req voice.CallRequest) (*voice.CallResult, error)
}

// SMSSender sends one fallback text message.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// AuditLog records each outbound confirmation call.
type AuditLog interface {
	CallPlaced(ctx context.Context, appointmentID, phone string, attempt int)
	SMSFallback(ctx context.Context, appointmentID, phone string)
}

// StatusMirror propagates terminal statuses to the upstream calendar.
type StatusMirror interface {
	MirrorStatus(ctx context.Context, appt *appointment.Appointment, status appointment.Status) error
}

// Policy holds the retry knobs of the confirmation cycle.
type Policy struct {
	// MaxAttempts is the total call budget per appointment.
	MaxAttempts int
	// RetryDelay is the fixed wait before an unanswered call is retried.
	RetryDelay time.Duration
}

// DispatchResult reports what InitiateConfirmation did.
type DispatchResult struct {
	Dispatched bool
	Deferred   bool
	Reason     string
	CallID     string
}

// Config wires a Machine.
type Config struct {
	Store   appointment.Store
	Calls   CallDispatcher
	SMS     SMSSender
	CallLog AuditLog
	Mirror  StatusMirror
	Metrics *observemetrics.ConfirmationMetrics
	Logger  *logging.Logger
	Policy  Policy
	BaseURL string
	Persona string
	Now     func() time.Time
}

// Machine owns the per-appointment confirmation status and attempt counter.
// It is the only writer of confirmation state: the scheduler sweep, the
// call-outcome webhook and the reply webhook all funnel through it.
type Machine struct {
	store   appointment.Store
	calls   CallDispatcher
	sms     SMSSender
	callLog AuditLog
	mirror  StatusMirror
	metrics *observemetrics.ConfirmationMetrics
	logger  *logging.Logger
	policy  Policy
	baseURL string
	persona string
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine creates the confirmation state machine.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("confirmation: store required")
	}
	if cfg.Calls == nil {
		return nil, fmt.Errorf("confirmation: call dispatcher required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = 2
	}
	if cfg.Policy.RetryDelay <= 0 {
		cfg.Policy.RetryDelay = 2 * time.Hour
	}
	if cfg.Persona == "" {
		cfg.Persona = "June"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Machine{
		store:   cfg.Store,
		calls:   cfg.Calls,
		sms:     cfg.SMS,
		callLog: cfg.CallLog,
		mirror:  cfg.Mirror,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		policy:  cfg.Policy,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		persona: cfg.Persona,
		now:     cfg.Now,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// lockFor serializes transitions per appointment so racing webhooks cannot
// interleave. Unrelated appointments proceed in parallel.
func (m *Machine) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// InitiateConfirmation places one confirmation call for a pending appointment.
// Calls outside the window are deferred without touching the attempt counter.
// The counter itself only moves when the provider reports an unanswered call.
func (m *Machine) InitiateConfirmation(ctx context.Context, appt *appointment.Appointment, window CallWindow) (DispatchResult, error) {
	if appt == nil {
		return DispatchResult{}, fmt.Errorf("confirmation: appointment required")
	}
	if appt.Status != appointment.StatusPending {
		return DispatchResult{}, ErrNotPending
	}
	if appt.CallAttempts >= m.policy.MaxAttempts {
		return DispatchResult{}, ErrAttemptsExhausted
	}
	if !window.Open(m.now()) {
		m.metrics.ObserveDeferred()
		return DispatchResult{Deferred: true, Reason: "outside call window"}, nil
	}
	return m.placeCall(ctx, appt)
}

func (m *Machine) placeCall(ctx context.Context, appt *appointment.Appointment) (DispatchResult, error) {
	attempt := appt.CallAttempts + 1
	req := voice.CallRequest{
		Phone:             appt.Phone,
		Voice:             m.persona,
		Task:              CallScript(m.persona, appt.Name, appt.Service, appt.ScheduledAt),
		CallbackURL:       m.callbackURL("/webhooks/voice/confirmation", appt),
		StatusCallbackURL: m.callbackURL("/webhooks/voice/status", appt),
	}
	res, err := m.calls.PlaceCall(ctx, req)
	if err != nil {
		m.metrics.ObserveCall("dispatch_failed")
		return DispatchResult{}, fmt.Errorf("confirmation: place call: %w", err)
	}
	if m.callLog != nil {
		m.callLog.CallPlaced(ctx, appt.ID, appt.Phone, attempt)
	}
	m.metrics.ObserveCall("dispatched")
	m.logger.Info("confirmation call placed",
		"appointment_id", appt.ID,
		"phone", logging.MaskPhone(appt.Phone),
		"attempt", attempt,
		"call_id", res.CallID,
	)
	return DispatchResult{Dispatched: true, CallID: res.CallID}, nil
}

func (m *Machine) callbackURL(path string, appt *appointment.Appointment) string {
	q := url.Values{}
	q.Set("appointmentId", appt.ID)
	return m.baseURL + path + "?" + q.Encode()
}

// HandleCallOutcome reconciles a call-status webhook against the appointment
// record. Unanswered calls bump the attempt counter and either schedule a
// retry or, once the budget is spent, fall back to one SMS.
func (m *Machine) HandleCallOutcome(ctx context.Context, key CorrelationKey, outcome string) error {
	appt, err := m.resolve(ctx, key)
	if err != nil {
		return err
	}
	l := m.lockFor(appt.ID)
	l.Lock()
	defer l.Unlock()

	// Re-read under the lock; the first read raced other transitions.
	appt, err = m.store.GetByID(ctx, appt.ID)
	if err != nil {
		return err
	}

	outcome = strings.ToLower(strings.TrimSpace(outcome))
	m.metrics.ObserveOutcome(outcome)
	switch outcome {
	case OutcomeNoAnswer, OutcomeBusy:
		return m.handleUnanswered(ctx, appt)
	case OutcomeCompleted:
		// The spoken-confirmation webhook is authoritative for the final status.
		return nil
	default:
		m.logger.Info("ignoring call outcome",
			"appointment_id", appt.ID,
			"outcome", outcome,
		)
		return nil
	}
}

func (m *Machine) handleUnanswered(ctx context.Context, appt *appointment.Appointment) error {
	if appt.Status != appointment.StatusPending {
		// A reply or cancellation landed first; nothing to retry.
		return nil
	}
	attempts := appt.CallAttempts + 1
	if attempts > m.policy.MaxAttempts {
		attempts = m.policy.MaxAttempts
	}
	if attempts < m.policy.MaxAttempts {
		retryAt := m.now().Add(m.policy.RetryDelay)
		if err := m.store.ScheduleRetry(ctx, appt.ID, attempts, retryAt); err != nil {
			if errors.Is(err, appointment.ErrConflict) {
				return nil
			}
			return fmt.Errorf("confirmation: schedule retry: %w", err)
		}
		m.metrics.ObserveRetryScheduled()
		m.logger.Info("confirmation retry scheduled",
			"appointment_id", appt.ID,
			"attempt", attempts,
			"retry_at", retryAt.UTC().Format(time.RFC3339),
		)
		return nil
	}
	return m.sendFallback(ctx, appt, attempts)
}

// sendFallback flips the record to sms_fallback_sent before dispatching so a
// redelivered webhook can never produce a second message. A failed send is
// logged and not rolled back.
func (m *Machine) sendFallback(ctx context.Context, appt *appointment.Appointment, attempts int) error {
	err := m.store.TransitionStatus(ctx, appt.ID,
		[]appointment.Status{appointment.StatusPending},
		appointment.StatusSMSFallbackSent, attempts)
	if err != nil {
		if errors.Is(err, appointment.ErrConflict) {
			return nil
		}
		return fmt.Errorf("confirmation: mark sms fallback: %w", err)
	}
	m.metrics.ObserveSMSFallback()
	if m.callLog != nil {
		m.callLog.SMSFallback(ctx, appt.ID, appt.Phone)
	}
	if m.sms == nil {
		m.logger.Warn("sms sender not configured, fallback skipped", "appointment_id", appt.ID)
		return nil
	}
	body := FallbackSMSBody(appt.Service, appt.ScheduledAt)
	if err := m.sms.Send(ctx, appt.Phone, body); err != nil {
		m.logger.Error("sms fallback send failed",
			"appointment_id", appt.ID,
			"phone", logging.MaskPhone(appt.Phone),
			"error", err,
		)
	}
	return nil
}

// HandleReply reconciles a spoken or typed confirmation reply. Replies against
// terminal appointments return ErrAlreadyFinal and change nothing.
func (m *Machine) HandleReply(ctx context.Context, key CorrelationKey, raw string) (appointment.Status, error) {
	appt, err := m.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	l := m.lockFor(appt.ID)
	l.Lock()
	defer l.Unlock()

	appt, err = m.store.GetByID(ctx, appt.ID)
	if err != nil {
		return "", err
	}
	if appt.Status.Terminal() {
		m.metrics.ObserveReply("already_final")
		return appt.Status, ErrAlreadyFinal
	}

	next, ok := MapReply(raw)
	if !ok {
		m.metrics.ObserveReply("unrecognized")
		return appt.Status, ErrUnrecognizedReply
	}

	err = m.store.TransitionStatus(ctx, appt.ID,
		[]appointment.Status{appointment.StatusPending, appointment.StatusSMSFallbackSent},
		next, appt.CallAttempts)
	if err != nil {
		if errors.Is(err, appointment.ErrConflict) {
			return appt.Status, ErrAlreadyFinal
		}
		return "", fmt.Errorf("confirmation: apply reply: %w", err)
	}
	m.metrics.ObserveReply(string(next))
	m.logger.Info("confirmation reply applied",
		"appointment_id", appt.ID,
		"status", string(next),
	)
	if m.mirror != nil {
		if err := m.mirror.MirrorStatus(ctx, appt, next); err != nil {
			m.logger.Error("calendar status mirror failed",
				"appointment_id", appt.ID,
				"error", err,
			)
		}
	}
	return next, nil
}

// MapReply normalizes a free-text reply and maps it to a terminal status.
func MapReply(raw string) (appointment.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		return appointment.StatusConfirmed, true
	case "no":
		return appointment.StatusCancelled, true
	case "reschedule":
		return appointment.StatusRescheduleRequested, true
	}
	return "", false
}

// resolve finds the appointment a webhook refers to, id first, phone second.
func (m *Machine) resolve(ctx context.Context, key CorrelationKey) (*appointment.Appointment, error) {
	if key.empty() {
		return nil, appointment.ErrNotFound
	}
	if key.AppointmentID != "" {
		return m.store.GetByID(ctx, key.AppointmentID)
	}
	now := m.now()
	appt, err := m.store.FindOpenByPhone(ctx, key.Phone, now.Add(-24*time.Hour), now.Add(phoneLookupHorizon))
	if err != nil {
		return nil, err
	}
	m.logger.Warn("resolved webhook by phone fallback",
		"appointment_id", appt.ID,
		"phone", logging.MaskPhone(key.Phone),
	)
	return appt, nil
}
