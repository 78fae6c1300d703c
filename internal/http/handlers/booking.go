package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mialabs/receptionist/internal/appointment"
	"github.com/mialabs/receptionist/internal/calendar"
	"github.com/mialabs/receptionist/pkg/logging"
)

const slotDuration = 30 * time.Minute

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^([1-9]|1[0-2]):[0-5][0-9] (AM|PM)$`)
)

// slotChecker is the slice of the calendar client the booking flow needs.
type slotChecker interface {
	AvailableSlots(ctx context.Context, calendarID string, day time.Time) ([]string, error)
	CreateAppointment(ctx context.Context, req calendar.CreateAppointmentRequest) (string, error)
}

// BookingHandler books appointments against the upstream calendar and seeds
// the local confirmation record.
type BookingHandler struct {
	calendar  slotChecker
	calendars calendar.ServiceCalendars
	store     appointment.Store
	loc       *time.Location
	logger    *logging.Logger
}

// BookingConfig wires a BookingHandler.
type BookingConfig struct {
	Calendar  slotChecker
	Calendars calendar.ServiceCalendars
	Store     appointment.Store
	// Location is the clinic's timezone; booked slots are interpreted in it.
	Location *time.Location
	Logger   *logging.Logger
}

// NewBookingHandler creates the booking handler.
func NewBookingHandler(cfg BookingConfig) *BookingHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BookingHandler{
		calendar:  cfg.Calendar,
		calendars: cfg.Calendars,
		store:     cfg.Store,
		loc:       cfg.Location,
		logger:    cfg.Logger,
	}
}

// flexString accepts a JSON string or an array of string fragments. Voice
// agents occasionally send split values like ["2025-07-","04"].
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*f = flexString(strings.Join(parts, ""))
	return nil
}

type bookingRequest struct {
	Name    string     `json:"name"`
	Phone   string     `json:"phone"`
	Date    flexString `json:"date"`
	Time    flexString `json:"time"`
	Service string     `json:"service"`
}

type bookingResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

// CheckAndBook handles POST /check-and-book.
func (h *BookingHandler) CheckAndBook(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: "Invalid request body."})
		return
	}

	service := strings.TrimSpace(req.Service)
	if service == "" {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: "Missing service."})
		return
	}
	calendarID, ok := h.calendars.CalendarFor(service)
	if !ok {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: fmt.Sprintf("Unknown service: %s", service)})
		return
	}

	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	date := strings.TrimSpace(string(req.Date))
	timeOfDay := strings.TrimSpace(string(req.Time))
	if name == "" || phone == "" || date == "" || timeOfDay == "" {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: "Missing fields."})
		return
	}
	if !dateRe.MatchString(date) {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: "Date must be YYYY-MM-DD"})
		return
	}
	if !timeRe.MatchString(timeOfDay) {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: "Time must be H:MM AM/PM"})
		return
	}

	startAt, err := h.slotTime(date, timeOfDay)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, bookingResponse{Status: "fail", Message: "Invalid date or time."})
		return
	}

	isoSlot := startAt.Format("2006-01-02T15:04:05-07:00")
	slots, err := h.calendar.AvailableSlots(r.Context(), calendarID, startAt)
	if err != nil {
		h.logger.Error("slot lookup failed", "calendar_id", calendarID, "error", err)
		respondJSON(w, http.StatusInternalServerError, bookingResponse{Status: "error", Message: "Booking failed."})
		return
	}
	if !containsSlot(slots, isoSlot) {
		respondJSON(w, http.StatusConflict, bookingResponse{Status: "fail", Message: "Selected time slot unavailable"})
		return
	}

	endAt := startAt.Add(slotDuration)
	calendarApptID, err := h.calendar.CreateAppointment(r.Context(), calendar.CreateAppointmentRequest{
		CalendarID: calendarID,
		Name:       name,
		Phone:      phone,
		StartTime:  isoSlot,
		EndTime:    endAt.Format("2006-01-02T15:04:05-07:00"),
	})
	if err != nil {
		h.logger.Error("calendar booking failed", "calendar_id", calendarID, "error", err)
		respondJSON(w, http.StatusInternalServerError, bookingResponse{Status: "error", Message: "Booking failed."})
		return
	}

	// The calendar's id doubles as the local record key, so webhook
	// correlation works no matter which side minted the id.
	id, err := h.store.Create(r.Context(), &appointment.Appointment{
		ID:          calendarApptID,
		CalendarID:  calendarID,
		Name:        name,
		Phone:       phone,
		Service:     service,
		ScheduledAt: startAt,
		Status:      appointment.StatusPending,
	})
	if err != nil {
		h.logger.Error("local appointment record failed", "appointment_id", calendarApptID, "error", err)
		respondJSON(w, http.StatusInternalServerError, bookingResponse{Status: "error", Message: "Booking failed."})
		return
	}

	h.logger.Info("appointment booked",
		"appointment_id", id,
		"service", service,
		"phone", logging.MaskPhone(phone),
	)
	respondJSON(w, http.StatusOK, bookingResponse{Status: "success", Message: "Appointment booked.", AppointmentID: id})
}

// slotTime converts "YYYY-MM-DD" + "H:MM AM/PM" into a clinic-local time.
func (h *BookingHandler) slotTime(date, timeOfDay string) (time.Time, error) {
	hour24, minute, err := to24Hour(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", date, h.loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour24, minute, 0, 0, h.loc), nil
}

// to24Hour converts "10:00 AM" style clock values to 24h hour and minute.
func to24Hour(v string) (int, int, error) {
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("handlers: malformed clock %q", v)
	}
	hm := strings.SplitN(parts[0], ":", 2)
	if len(hm) != 2 {
		return 0, 0, fmt.Errorf("handlers: malformed clock %q", v)
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil {
		return 0, 0, err
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil {
		return 0, 0, err
	}
	switch parts[1] {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	default:
		return 0, 0, fmt.Errorf("handlers: malformed meridiem %q", v)
	}
	return hour, minute, nil
}

func containsSlot(slots []string, want string) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}
