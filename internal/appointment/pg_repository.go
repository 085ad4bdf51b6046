package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/db"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

const (
	sqlStateUniqueViolation    = "23505"
	sqlStateExclusionViolation = "23P01"
	sqlStateSerialization      = "40001"
	sqlStateDeadlock           = "40P01"

	// partial unique index on (staff_id, start_time) of live appointments
	constraintStaffStart = "appointments_staff_start_key"
)

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, client_id, centre_id, service_id, staff_id, start_time, end_time, status,
	notes, price_cents, client_name, service_name, staff_name, centre_name,
	created_by, last_modified_by, created_at, updated_at, cancellation_reason, version
`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	var reason *string

	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.CentreID,
		&a.ServiceID,
		&a.StaffID,
		&a.StartTime,
		&a.EndTime,
		&status,
		&a.Notes,
		&a.PriceCents,
		&a.ClientName,
		&a.ServiceName,
		&a.StaffName,
		&a.CentreName,
		&a.CreatedBy,
		&a.LastModifiedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&reason,
		&a.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status).Normalize()
	if reason != nil {
		a.CancellationReason = *reason
	}
	return &a, nil
}

func scanHistory(rows pgx.Rows) ([]RescheduleEntry, error) {
	defer rows.Close()

	var out []RescheduleEntry
	for rows.Next() {
		var e RescheduleEntry
		if err := rows.Scan(
			&e.PreviousStart,
			&e.PreviousEnd,
			&e.PreviousStaffID,
			&e.NewStart,
			&e.NewEnd,
			&e.NewStaffID,
			&e.Reason,
			&e.Actor,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// mapPgErr folds driver failures into the error taxonomy.
func mapPgErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlStateExclusionViolation,
			pgErr.Code == sqlStateUniqueViolation && pgErr.ConstraintName == constraintStaffStart:
			return fmt.Errorf("%w: %s", ErrSlotUnavailable, pgErr.ConstraintName)
		case pgErr.Code == sqlStateSerialization, pgErr.Code == sqlStateDeadlock:
			return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.As(err, &connErr) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, appt Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, client_id, centre_id, service_id, staff_id, start_time, end_time, status,
			notes, price_cents, client_name, service_name, staff_name, centre_name,
			created_by, last_modified_by, created_at, updated_at, cancellation_reason, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1)
		RETURNING `+appointmentColumns,
		appt.ID, appt.ClientID, appt.CentreID, appt.ServiceID, appt.StaffID,
		appt.StartTime, appt.EndTime, string(appt.Status.Normalize()),
		appt.Notes, appt.PriceCents, appt.ClientName, appt.ServiceName, appt.StaffName, appt.CentreName,
		appt.CreatedBy, appt.LastModifiedBy, appt.CreatedAt, appt.UpdatedAt,
		nullableString(appt.CancellationReason),
	)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapPgErr("insert appointment", err)
	}
	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, appt Appointment, expectedVersion int64, entry *RescheduleEntry) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, mapPgErr("begin update", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET staff_id = $2,
		    service_id = $3,
		    start_time = $4,
		    end_time = $5,
		    status = $6,
		    notes = $7,
		    price_cents = $8,
		    service_name = $9,
		    staff_name = $10,
		    last_modified_by = $11,
		    updated_at = $12,
		    cancellation_reason = $13,
		    version = version + 1
		WHERE id = $1
		  AND version = $14
		RETURNING `+appointmentColumns,
		appt.ID, appt.StaffID, appt.ServiceID, appt.StartTime, appt.EndTime,
		string(appt.Status.Normalize()), appt.Notes, appt.PriceCents, appt.ServiceName, appt.StaffName,
		appt.LastModifiedBy, appt.UpdatedAt, nullableString(appt.CancellationReason),
		expectedVersion,
	)
	updated, err := scanAppointment(row)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, mapPgErr("update appointment", err)
		}
		var version int64
		verr := tx.QueryRow(ctx, `SELECT version FROM appointments WHERE id = $1`, appt.ID).Scan(&version)
		if errors.Is(verr, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		if verr != nil {
			return nil, mapPgErr("check appointment version", verr)
		}
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrStaleAppointment, version, expectedVersion)
	}

	if entry != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_reschedules (
				appointment_id, previous_start, previous_end, previous_staff_id,
				new_start, new_end, new_staff_id, reason, actor_id, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
		`, appt.ID, entry.PreviousStart, entry.PreviousEnd, entry.PreviousStaffID,
			entry.NewStart, entry.NewEnd, entry.NewStaffID, entry.Reason, entry.Actor,
			nullableTime(entry.Timestamp))
		if err != nil {
			return nil, mapPgErr("insert reschedule history", err)
		}
	}

	history, err := r.history(ctx, tx, appt.ID)
	if err != nil {
		return nil, err
	}
	updated.RescheduleHistory = history

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgErr("commit update", err)
	}
	committed = true
	return updated, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, mapPgErr("get appointment", err)
	}

	history, err := r.history(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	appt.RescheduleHistory = history
	return appt, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PgRepository) history(ctx context.Context, q querier, id uuid.UUID) ([]RescheduleEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT previous_start, previous_end, previous_staff_id, new_start, new_end, new_staff_id,
		       reason, actor_id, created_at
		FROM appointment_reschedules
		WHERE appointment_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, mapPgErr("load reschedule history", err)
	}
	history, err := scanHistory(rows)
	if err != nil {
		return nil, mapPgErr("scan reschedule history", err)
	}
	return history, nil
}

// List leaves RescheduleHistory empty; Get loads it.
func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	if filter.Scope.Empty() {
		return []Appointment{}, nil
	}

	var (
		args  []any
		where []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if clause := scopeClause(filter.Scope, arg); clause != "" {
		where = append(where, clause)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		where = append(where, "status = ANY("+arg(statuses)+"::text[])")
	}
	if !filter.From.IsZero() {
		where = append(where, "start_time >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "start_time < "+arg(filter.To))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr("list appointments", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, mapPgErr("scan appointment", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr("list appointments", err)
	}
	return result, nil
}

func (r *PgRepository) Clients(ctx context.Context, scope access.Scope) ([]ClientRef, error) {
	if scope.Empty() {
		return []ClientRef{}, nil
	}

	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	query := `SELECT DISTINCT ON (client_id) client_id, client_name FROM appointments`
	if clause := scopeClause(scope, arg); clause != "" {
		query += ` WHERE ` + clause
	}
	query += ` ORDER BY client_id, created_at DESC`
	query = `SELECT client_id, client_name FROM (` + query + `) c ORDER BY client_name, client_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgErr("list clients", err)
	}
	defer rows.Close()

	result := []ClientRef{}
	for rows.Next() {
		var c ClientRef
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, mapPgErr("scan client", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr("list clients", err)
	}
	return result, nil
}

// scopeClause renders a read scope as an OR of its grants.
func scopeClause(scope access.Scope, arg func(any) string) string {
	if scope.All {
		return ""
	}
	var grants []string
	if scope.ClientID != uuid.Nil {
		grants = append(grants, "client_id = "+arg(scope.ClientID))
	}
	if scope.StaffID != uuid.Nil {
		grants = append(grants, "staff_id = "+arg(scope.StaffID))
	}
	if len(scope.CentreIDs) > 0 {
		ids := make([]string, 0, len(scope.CentreIDs))
		for _, id := range scope.CentreIDs {
			ids = append(ids, id.String())
		}
		grants = append(grants, "centre_id = ANY("+arg(ids)+"::uuid[])")
	}
	return "(" + strings.Join(grants, " OR ") + ")"
}

func (r *PgRepository) BusyIntervals(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]slots.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, start_time, end_time
		FROM appointments
		WHERE staff_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, staffID, from, to)
	if err != nil {
		return nil, mapPgErr("load busy intervals", err)
	}
	defer rows.Close()

	var result []slots.Interval
	for rows.Next() {
		var iv slots.Interval
		if err := rows.Scan(&iv.AppointmentID, &iv.Start, &iv.End); err != nil {
			return nil, mapPgErr("scan busy interval", err)
		}
		result = append(result, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr("load busy intervals", err)
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
