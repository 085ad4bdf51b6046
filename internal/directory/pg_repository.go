package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/wellness-scheduling/internal/db"
)

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func parseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func decodeHours(raw []byte) (map[time.Weekday]Hours, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var byName map[string]Hours
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("decode operating hours: %w", err)
	}
	out := make(map[time.Weekday]Hours, len(byName))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if h, ok := byName[strings.ToLower(d.String())]; ok {
			out[d] = h
		}
	}
	return out, nil
}

// EncodeHours renders operating hours the way the centres table stores them.
func EncodeHours(hours map[time.Weekday]Hours) ([]byte, error) {
	byName := make(map[string]Hours, len(hours))
	for d, h := range hours {
		byName[strings.ToLower(d.String())] = h
	}
	return json.Marshal(byName)
}

func scanCentre(row pgx.Row) (*Centre, error) {
	var c Centre
	var hours []byte
	var serviceIDs, staffIDs []string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Address,
		&c.Timezone,
		&hours,
		&c.Active,
		&serviceIDs,
		&staffIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCentreNotFound
		}
		return nil, err
	}

	if c.OperatingHours, err = decodeHours(hours); err != nil {
		return nil, err
	}
	if c.ServiceIDs, err = parseIDs(serviceIDs); err != nil {
		return nil, err
	}
	if c.StaffIDs, err = parseIDs(staffIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	var centreIDs []string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Category,
		&s.DurationMinutes,
		&s.PriceCents,
		&s.Active,
		&s.Policy.AdvanceBookingDays,
		&s.Policy.CancellationNoticeHours,
		&s.Policy.ApprovalRequired,
		&s.RequiredQualifications,
		&centreIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	if s.CentreIDs, err = parseIDs(centreIDs); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanStaff(row pgx.Row) (*StaffMember, error) {
	var m StaffMember
	var legacy *string
	var centreIDs []string

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.Phone,
		&m.Qualifications,
		&legacy,
		&m.Active,
		&centreIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}

	if legacy != nil {
		m.LegacyCentreName = *legacy
	}
	if m.CentreIDs, err = parseIDs(centreIDs); err != nil {
		return nil, err
	}
	return &m, nil
}

const staffColumns = `
	s.id, s.name, s.email, s.phone, s.qualifications, s.legacy_centre_name, s.active,
	COALESCE(ARRAY(SELECT sc.centre_id::text FROM staff_centres sc WHERE sc.staff_id = s.id ORDER BY sc.centre_id), '{}')
`

// Interface methods

func (r *PgRepository) GetCentre(ctx context.Context, id uuid.UUID) (*Centre, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.address, c.timezone, c.operating_hours, c.active,
			COALESCE(ARRAY(SELECT cs.service_id::text FROM centre_services cs WHERE cs.centre_id = c.id ORDER BY cs.service_id), '{}'),
			COALESCE(ARRAY(SELECT sc.staff_id::text FROM staff_centres sc WHERE sc.centre_id = c.id ORDER BY sc.staff_id), '{}')
		FROM centres c
		WHERE c.id = $1
	`, id)
	return scanCentre(row)
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT s.id, s.name, s.category, s.duration_minutes, s.price_cents, s.active,
			s.advance_booking_days, s.cancellation_notice_hours, s.approval_required,
			s.required_qualifications,
			COALESCE(ARRAY(SELECT cs.centre_id::text FROM centre_services cs WHERE cs.service_id = s.id ORDER BY cs.centre_id), '{}')
		FROM services s
		WHERE s.id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) GetStaff(ctx context.Context, id uuid.UUID) (*StaffMember, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff_members s WHERE s.id = $1`, id)
	return scanStaff(row)
}

func (r *PgRepository) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) ListActiveStaff(ctx context.Context) ([]StaffMember, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+staffColumns+` FROM staff_members s WHERE s.active ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StaffMember
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
