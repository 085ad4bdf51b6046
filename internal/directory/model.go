package directory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Hours is one weekday's opening window as wall clock "HH:MM" strings.
type Hours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Bounds returns the window as offsets from midnight.
func (h Hours) Bounds() (open, close time.Duration, err error) {
	o, err := time.Parse("15:04", h.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("parse open %q: %w", h.Open, err)
	}
	c, err := time.Parse("15:04", h.Close)
	if err != nil {
		return 0, 0, fmt.Errorf("parse close %q: %w", h.Close, err)
	}
	open = time.Duration(o.Hour())*time.Hour + time.Duration(o.Minute())*time.Minute
	close = time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute
	if close <= open {
		return 0, 0, fmt.Errorf("close %q is not after open %q", h.Close, h.Open)
	}
	return open, close, nil
}

type Centre struct {
	ID             uuid.UUID
	Name           string
	Address        string
	Timezone       string // IANA name, empty means UTC
	OperatingHours map[time.Weekday]Hours
	StaffIDs       []uuid.UUID
	ServiceIDs     []uuid.UUID
	Active         bool
}

// Offers reports whether the centre lists serviceID among its services.
func (c Centre) Offers(serviceID uuid.UUID) bool {
	return slices.Contains(c.ServiceIDs, serviceID)
}

// Location resolves the centre's time zone, falling back to UTC.
func (c Centre) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type BookingPolicy struct {
	AdvanceBookingDays      int // 0 means no limit
	CancellationNoticeHours int // 0 means the platform default
	ApprovalRequired        bool
}

type Service struct {
	ID                     uuid.UUID
	Name                   string
	Category               string
	DurationMinutes        int
	PriceCents             int64
	CentreIDs              []uuid.UUID
	RequiredQualifications []string
	Active                 bool
	Policy                 BookingPolicy
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type StaffMember struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          string
	Qualifications []string
	CentreIDs      []uuid.UUID
	// LegacyCentreName is the free-text centre assignment older records carry
	// instead of CentreIDs.
	LegacyCentreName string
	Active           bool
}

// HasQualifications reports whether the staff member holds every required
// qualification, compared case-insensitively.
func (m StaffMember) HasQualifications(required []string) bool {
	for _, req := range required {
		found := false
		for _, q := range m.Qualifications {
			if strings.EqualFold(strings.TrimSpace(q), strings.TrimSpace(req)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type Client struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
}
