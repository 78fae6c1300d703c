package calllog

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/mialabs/receptionist/pkg/logging"
)

// Entry is one audit record in the call log.
type Entry struct {
	Time          string `json:"ts"`
	Event         string `json:"event"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
}

// Log appends one JSON line per outbound contact to an audit file and mirrors
// the event through the structured logger (with the phone masked there).
type Log struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
	now    func() time.Time
}

// New creates a call log writing to path. An empty path disables the file and
// keeps only the structured-log mirror.
func New(path string, logger *logging.Logger) *Log {
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{path: path, logger: logger, now: time.Now}
}

// CallPlaced records one outbound confirmation call.
func (l *Log) CallPlaced(_ context.Context, appointmentID, phone string, attempt int) {
	l.append(Entry{Event: "call-sent", AppointmentID: appointmentID, Phone: phone, Attempt: attempt})
}

// SMSFallback records the fallback message after the call budget was spent.
func (l *Log) SMSFallback(_ context.Context, appointmentID, phone string) {
	l.append(Entry{Event: "sms-fallback", AppointmentID: appointmentID, Phone: phone})
}

func (l *Log) append(e Entry) {
	e.Time = l.now().UTC().Format(time.RFC3339)
	l.logger.Info("call log",
		"event", e.Event,
		"appointment_id", e.AppointmentID,
		"phone", logging.MaskPhone(e.Phone),
		"attempt", e.Attempt,
	)
	if l.path == "" {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("call log open failed", "error", err, "path", l.path)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		l.logger.Error("call log write failed", "error", err, "path", l.path)
	}
}
