package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for development and tests. Scheduled
// retries live only in memory and are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*Appointment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Appointment)}
}

func (s *MemoryStore) Create(_ context.Context, appt *Appointment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *appt
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.items[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (s *MemoryStore) ListWindow(_ context.Context, start, end time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, a := range s.items {
		if !a.ScheduledAt.Before(start) && a.ScheduledAt.Before(end) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *MemoryStore) FindOpenByPhone(_ context.Context, phone string, start, end time.Time) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *Appointment
	for _, a := range s.items {
		if a.Phone != phone || a.Status.Terminal() {
			continue
		}
		if a.ScheduledAt.Before(start) || !a.ScheduledAt.Before(end) {
			continue
		}
		if match == nil || a.CreatedAt.Before(match.CreatedAt) {
			match = a
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	cp := *match
	return &cp, nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, id string, expected []Status, next Status, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if !statusIn(appt.Status, expected) {
		return ErrConflict
	}
	appt.Status = next
	appt.CallAttempts = attempts
	appt.NextAttemptAt = nil
	appt.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ScheduleRetry(_ context.Context, id string, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if appt.Status != StatusPending {
		return ErrConflict
	}
	appt.CallAttempts = attempts
	t := at
	appt.NextAttemptAt = &t
	appt.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListDueRetries(_ context.Context, now time.Time, limit int) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, a := range s.items {
		if a.Status != StatusPending || a.NextAttemptAt == nil {
			continue
		}
		if a.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(*out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ClearRetry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if appt.NextAttemptAt == nil {
		return ErrConflict
	}
	appt.NextAttemptAt = nil
	appt.UpdatedAt = time.Now().UTC()
	return nil
}
