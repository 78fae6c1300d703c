package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mialabs/receptionist/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// Client is a REST client for a GoHighLevel-style scheduling calendar.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientConfig configures the calendar client.
type ClientConfig struct {
	// APIKey is the calendar API key (Bearer token).
	APIKey string
	// BaseURL is the REST root, e.g. https://rest.gohighlevel.com/v1.
	BaseURL string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewClient creates a calendar API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("calendar client: API key required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("calendar client: base URL required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// AvailableSlots returns the open slot start times for a calendar on one day.
func (c *Client) AvailableSlots(ctx context.Context, calendarID string, day time.Time) ([]string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24*time.Hour - time.Second)
	q := url.Values{}
	q.Set("calendarId", calendarID)
	q.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))

	var out map[string]struct {
		Slots []string `json:"slots"`
	}
	if err := c.get(ctx, "/appointments/slots?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("calendar: fetch slots: %w", err)
	}
	dayKey := start.Format("2006-01-02")
	return out[dayKey].Slots, nil
}

// CreateAppointmentRequest is the booking payload for a standalone calendar.
type CreateAppointmentRequest struct {
	CalendarID          string `json:"calendarId"`
	MeetingLocationType string `json:"meetingLocationType"`
	MeetingLocationID   string `json:"meetingLocationId"`
	AppointmentStatus   string `json:"appointmentStatus"`
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	StartTime           string `json:"startTime"`
	EndTime             string `json:"endTime"`
}

type createAppointmentResponse struct {
	ID string `json:"id"`
}

// CreateAppointment books a slot and returns the calendar's appointment id.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (string, error) {
	if req.MeetingLocationType == "" {
		req.MeetingLocationType = "custom"
	}
	if req.MeetingLocationID == "" {
		req.MeetingLocationID = "default"
	}
	if req.AppointmentStatus == "" {
		req.AppointmentStatus = "new"
	}
	var out createAppointmentResponse
	if err := c.post(ctx, "/appointments/", req, &out); err != nil {
		return "", fmt.Errorf("calendar: create appointment: %w", err)
	}
	c.logger.Info("calendar appointment created",
		"appointment_id", out.ID,
		"calendar_id", req.CalendarID,
		"phone", logging.MaskPhone(req.Phone),
	)
	return out.ID, nil
}

// UpdateStatus patches the upstream appointment status.
func (c *Client) UpdateStatus(ctx context.Context, appointmentID, status string) error {
	body := map[string]string{"status": status}
	if err := c.put(ctx, "/appointments/"+appointmentID+"/status", body, nil); err != nil {
		return fmt.Errorf("calendar: update status: %w", err)
	}
	return nil
}

// Appointment is an upstream calendar entry.
type Appointment struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Phone     string `json:"phone"`
	StartTime string `json:"startTime"`
	Contact   *struct {
		Phone string `json:"phone"`
	} `json:"contact"`
}

// ContactPhone returns the best phone number the entry carries.
func (a Appointment) ContactPhone() string {
	if a.Contact != nil && a.Contact.Phone != "" {
		return a.Contact.Phone
	}
	return a.Phone
}

type listAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
}

// ListAppointments returns calendar entries inside [start, end].
func (c *Client) ListAppointments(ctx context.Context, calendarID string, start, end time.Time) ([]Appointment, error) {
	q := url.Values{}
	q.Set("calendarId", calendarID)
	q.Set("startDate", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endDate", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("includeAll", "true")

	var out listAppointmentsResponse
	if err := c.get(ctx, "/appointments/?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("calendar: list appointments: %w", err)
	}
	return out.Appointments, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) put(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPut, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
