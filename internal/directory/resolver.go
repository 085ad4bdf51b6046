package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// MatchStrategy decides whether a staff record belongs to a centre.
type MatchStrategy struct {
	Name  string
	Match func(staff StaffMember, centre Centre) bool
}

var (
	// MatchCentreID matches staff whose centre id set contains the centre.
	MatchCentreID = MatchStrategy{
		Name: "centre_id",
		Match: func(staff StaffMember, centre Centre) bool {
			return slices.Contains(staff.CentreIDs, centre.ID)
		},
	}

	// MatchLegacyName matches the free-text centre name exactly.
	MatchLegacyName = MatchStrategy{
		Name: "legacy_name",
		Match: func(staff StaffMember, centre Centre) bool {
			return staff.LegacyCentreName != "" && staff.LegacyCentreName == centre.Name
		},
	}

	// MatchLegacyNameFold matches the free-text centre name ignoring case.
	MatchLegacyNameFold = MatchStrategy{
		Name: "legacy_name_fold",
		Match: func(staff StaffMember, centre Centre) bool {
			name := strings.TrimSpace(staff.LegacyCentreName)
			return name != "" && strings.EqualFold(name, strings.TrimSpace(centre.Name))
		},
	}
)

// DefaultStrategies is evaluated in order; the first match wins. Dropping
// legacy name support means removing the last two entries.
var DefaultStrategies = []MatchStrategy{MatchCentreID, MatchLegacyName, MatchLegacyNameFold}

// Match is one eligible staff member plus the strategy that admitted them.
type Match struct {
	Staff    StaffMember
	Strategy string
	rank     int
}

type ResolverOption func(*Resolver)

// WithStrategies replaces the centre matching strategies.
func WithStrategies(strategies ...MatchStrategy) ResolverOption {
	return func(r *Resolver) { r.strategies = strategies }
}

// WithQualificationFilter additionally requires staff to hold every
// qualification the service lists.
func WithQualificationFilter(enabled bool) ResolverOption {
	return func(r *Resolver) { r.requireQualification = enabled }
}

func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

type Resolver struct {
	repo                 Repository
	strategies           []MatchStrategy
	requireQualification bool
	logger               *slog.Logger
}

func NewResolver(repo Repository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:       repo,
		strategies: DefaultStrategies,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repository exposes the underlying reference data store.
func (r *Resolver) Repository() Repository {
	return r.repo
}

// EligibleStaff returns the active staff who can deliver serviceID at centreID.
// A missing or inactive centre or service, or a service the centre does not
// offer, yields an empty result rather than an error.
func (r *Resolver) EligibleStaff(ctx context.Context, centreID, serviceID uuid.UUID) ([]StaffMember, error) {
	matches, err := r.Resolve(ctx, centreID, serviceID)
	if err != nil {
		return nil, err
	}
	out := make([]StaffMember, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Staff)
	}
	return out, nil
}

// Resolve is EligibleStaff with the matching strategy kept per result.
// Results are ordered by strategy priority, then name, then id.
func (r *Resolver) Resolve(ctx context.Context, centreID, serviceID uuid.UUID) ([]Match, error) {
	centre, err := r.repo.GetCentre(ctx, centreID)
	if err != nil {
		if errors.Is(err, ErrCentreNotFound) {
			return []Match{}, nil
		}
		return nil, fmt.Errorf("load centre: %w", err)
	}
	service, err := r.repo.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return []Match{}, nil
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if !centre.Active || !service.Active || !centre.Offers(service.ID) {
		return []Match{}, nil
	}

	staff, err := r.repo.ListActiveStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(staff))
	matches := make([]Match, 0)
	for _, member := range staff {
		if !member.Active {
			continue
		}
		if _, dup := seen[member.ID]; dup {
			continue
		}
		rank, name, ok := r.match(member, *centre)
		if !ok {
			continue
		}
		if r.requireQualification && !member.HasQualifications(service.RequiredQualifications) {
			r.logger.Debug("staff lacks qualification", "staff_id", member.ID, "service_id", service.ID)
			continue
		}
		seen[member.ID] = struct{}{}
		matches = append(matches, Match{Staff: member, Strategy: name, rank: rank})
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.rank != b.rank {
			return a.rank - b.rank
		}
		if c := strings.Compare(a.Staff.Name, b.Staff.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Staff.ID.String(), b.Staff.ID.String())
	})
	return matches, nil
}

// IsEligible reports whether staffID is in EligibleStaff(centreID, serviceID).
func (r *Resolver) IsEligible(ctx context.Context, centreID, serviceID, staffID uuid.UUID) (bool, error) {
	staff, err := r.EligibleStaff(ctx, centreID, serviceID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(staff, func(m StaffMember) bool { return m.ID == staffID }), nil
}

func (r *Resolver) match(member StaffMember, centre Centre) (int, string, bool) {
	for i, s := range r.strategies {
		if s.Match(member, centre) {
			return i, s.Name, true
		}
	}
	return 0, "", false
}
