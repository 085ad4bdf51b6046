package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/wellness-scheduling/internal/db"
	"github.com/hackgods/wellness-scheduling/internal/directory"
)

const clientBatchSize = 500

// Insert writes the dataset. Centres, services and staff go in one
// transaction; clients are committed in batches.
func Insert(ctx context.Context, pool db.DBTX, ds Dataset, logger *slog.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin directory seed: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := insertServices(ctx, tx, ds.Services); err != nil {
		return err
	}
	if err := insertCentres(ctx, tx, ds.Centres); err != nil {
		return err
	}
	if err := insertStaff(ctx, tx, ds.Staff); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit directory seed: %w", err)
	}
	logger.Info("directory seeded",
		"centres", len(ds.Centres),
		"services", len(ds.Services),
		"staff", len(ds.Staff),
	)

	for offset := 0; offset < len(ds.Clients); offset += clientBatchSize {
		end := min(offset+clientBatchSize, len(ds.Clients))
		if err := insertClients(ctx, pool, ds.Clients[offset:end]); err != nil {
			return err
		}
		logger.Info("clients seeded", "done", end, "total", len(ds.Clients))
	}
	return nil
}

func insertServices(ctx context.Context, tx pgx.Tx, services []directory.Service) error {
	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (
				id, name, category, duration_minutes, price_cents, active,
				advance_booking_days, cancellation_notice_hours, approval_required, required_qualifications
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, s.ID, s.Name, s.Category, s.DurationMinutes, s.PriceCents, s.Active,
			s.Policy.AdvanceBookingDays, s.Policy.CancellationNoticeHours, s.Policy.ApprovalRequired,
			nonNil(s.RequiredQualifications))
		if err != nil {
			return fmt.Errorf("insert service %s: %w", s.Name, err)
		}
	}
	return nil
}

func insertCentres(ctx context.Context, tx pgx.Tx, centres []directory.Centre) error {
	for _, c := range centres {
		hours, err := directory.EncodeHours(c.OperatingHours)
		if err != nil {
			return fmt.Errorf("encode hours for %s: %w", c.Name, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO centres (id, name, address, timezone, operating_hours, active)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.Name, c.Address, c.Timezone, hours, c.Active)
		if err != nil {
			return fmt.Errorf("insert centre %s: %w", c.Name, err)
		}
		for _, serviceID := range c.ServiceIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO centre_services (centre_id, service_id) VALUES ($1, $2)
			`, c.ID, serviceID); err != nil {
				return fmt.Errorf("link service to %s: %w", c.Name, err)
			}
		}
	}
	return nil
}

func insertStaff(ctx context.Context, tx pgx.Tx, staff []directory.StaffMember) error {
	for _, m := range staff {
		var legacy *string
		if m.LegacyCentreName != "" {
			legacy = &m.LegacyCentreName
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO staff_members (id, name, email, phone, qualifications, legacy_centre_name, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.Name, m.Email, m.Phone, nonNil(m.Qualifications), legacy, m.Active)
		if err != nil {
			return fmt.Errorf("insert staff %s: %w", m.Name, err)
		}
		for _, centreID := range m.CentreIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO staff_centres (staff_id, centre_id) VALUES ($1, $2)
			`, m.ID, centreID); err != nil {
				return fmt.Errorf("link staff %s: %w", m.Name, err)
			}
		}
	}
	return nil
}

func insertClients(ctx context.Context, pool db.DBTX, clients []directory.Client) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin client batch: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	for _, c := range clients {
		if _, err := tx.Exec(ctx, `
			INSERT INTO clients (id, name, email, phone) VALUES ($1, $2, $3, $4)
		`, c.ID, c.Name, c.Email, c.Phone); err != nil {
			return fmt.Errorf("insert client %s: %w", c.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit client batch: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
