package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs, kept narrow so tests
// can substitute pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists appointments in Postgres. Conditional status writes
// make it safe for concurrent webhook deliveries, and scheduled retries
// survive a process restart.
type PostgresStore struct {
	pool Querier
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(pool Querier) *PostgresStore {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const apptColumns = `id, calendar_id, name, phone, service, scheduled_at, confirmation_status, call_attempts, next_attempt_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, appt *Appointment) (string, error) {
	id := appt.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := appt.Status
	if status == "" {
		status = StatusPending
	}
	query := `
		INSERT INTO appointments (id, calendar_id, name, phone, service, scheduled_at, confirmation_status, call_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query, id, appt.CalendarID, appt.Name, appt.Phone, appt.Service, appt.ScheduledAt, string(status), appt.CallAttempts)
	if err != nil {
		return "", fmt.Errorf("appointment: insert: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointment: get by id: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) ListWindow(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("appointment: list window: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *PostgresStore) FindOpenByPhone(ctx context.Context, phone string, start, end time.Time) (*Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE phone = $1
		  AND scheduled_at >= $2 AND scheduled_at < $3
		  AND confirmation_status IN ('pending', 'sms_fallback_sent')
		ORDER BY created_at
		LIMIT 1
	`
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, phone, start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointment: find by phone: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, expected []Status, next Status, attempts int) error {
	query := `
		UPDATE appointments
		SET confirmation_status = $2,
			call_attempts = $3,
			next_attempt_at = NULL,
			updated_at = now()
		WHERE id = $1 AND confirmation_status = ANY($4)
	`
	ct, err := s.pool.Exec(ctx, query, id, string(next), attempts, statusStrings(expected))
	if err != nil {
		return fmt.Errorf("appointment: transition status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

func (s *PostgresStore) ScheduleRetry(ctx context.Context, id string, attempts int, at time.Time) error {
	query := `
		UPDATE appointments
		SET call_attempts = $2,
			next_attempt_at = $3,
			updated_at = now()
		WHERE id = $1 AND confirmation_status = 'pending'
	`
	ct, err := s.pool.Exec(ctx, query, id, attempts, at)
	if err != nil {
		return fmt.Errorf("appointment: schedule retry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

// ListDueRetries is a plain read: the conditional ClearRetry and status
// transitions that follow are what keep concurrent workers from double-firing
// a retry.
func (s *PostgresStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE confirmation_status = 'pending'
		  AND next_attempt_at IS NOT NULL
		  AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("appointment: list due retries: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (s *PostgresStore) ClearRetry(ctx context.Context, id string) error {
	query := `
		UPDATE appointments
		SET next_attempt_at = NULL,
			updated_at = now()
		WHERE id = $1 AND next_attempt_at IS NOT NULL
	`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("appointment: clear retry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

// missingOrConflict disambiguates a zero-row conditional update.
func (s *PostgresStore) missingOrConflict(ctx context.Context, id string) error {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM appointments WHERE id = $1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("appointment: conflict check: %w", err)
	}
	return ErrConflict
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.CalendarID, &a.Name, &a.Phone, &a.Service, &a.ScheduledAt, &status, &a.CallAttempts, &a.NextAttemptAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointment: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointment: rows: %w", err)
	}
	return out, nil
}

func statusStrings(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
