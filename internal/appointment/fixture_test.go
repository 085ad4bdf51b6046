package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/directory"
	"github.com/hackgods/wellness-scheduling/internal/notify"
	redisclient "github.com/hackgods/wellness-scheduling/internal/redis"
	"github.com/hackgods/wellness-scheduling/internal/slots"
)

// slotDay is the day most tests book on.
var slotDay = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return slotDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(evt notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	t         *testing.T
	now       time.Time
	dir       *directory.MemoryRepository
	repo      *MemoryRepository
	svc       *Service
	publisher *recordingPublisher

	centreA, centreB directory.Centre
	massage          directory.Service
	facial           directory.Service
	staffM, staffN   directory.StaffMember
	staffB           directory.StaffMember
	client, client2  directory.Client

	clientActor  access.Actor
	client2Actor access.Actor
	adminA       access.Actor
	adminB       access.Actor
	super        access.Actor
	staffActor   access.Actor
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	repo   Repository
	locker redisclient.ClaimLocker
	opts   Options
}

func withRepo(r Repository) fixtureOption { return func(c *fixtureConfig) { c.repo = r } }
func withLocker(l redisclient.ClaimLocker) fixtureOption {
	return func(c *fixtureConfig) { c.locker = l }
}
func withOptions(o Options) fixtureOption {
	return func(c *fixtureConfig) { c.opts = o }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		t:         t,
		now:       time.Date(2025, 1, 9, 8, 0, 0, 0, time.UTC),
		dir:       directory.NewMemoryRepository(),
		repo:      NewMemoryRepository(),
		publisher: &recordingPublisher{},
	}

	f.massage = directory.Service{ID: uuid.New(), Name: "Deep Tissue Massage", DurationMinutes: 60, PriceCents: 9000, Active: true}
	f.facial = directory.Service{ID: uuid.New(), Name: "Express Facial", DurationMinutes: 30, PriceCents: 4500, Active: true}
	f.centreA = directory.Centre{ID: uuid.New(), Name: "Harbour Spa", ServiceIDs: []uuid.UUID{f.massage.ID, f.facial.ID}, Active: true}
	f.centreB = directory.Centre{ID: uuid.New(), Name: "Hillside Retreat", ServiceIDs: []uuid.UUID{f.massage.ID}, Active: true}
	f.massage.CentreIDs = []uuid.UUID{f.centreA.ID, f.centreB.ID}
	f.facial.CentreIDs = []uuid.UUID{f.centreA.ID}

	f.staffM = directory.StaffMember{ID: uuid.New(), Name: "Maya", CentreIDs: []uuid.UUID{f.centreA.ID}, Active: true}
	f.staffN = directory.StaffMember{ID: uuid.New(), Name: "Noah", LegacyCentreName: "harbour spa", Active: true}
	f.staffB = directory.StaffMember{ID: uuid.New(), Name: "Bea", CentreIDs: []uuid.UUID{f.centreB.ID}, Active: true}
	f.client = directory.Client{ID: uuid.New(), Name: "Lena Park"}
	f.client2 = directory.Client{ID: uuid.New(), Name: "Omar Reyes"}

	f.dir.PutCentre(f.centreA)
	f.dir.PutCentre(f.centreB)
	f.dir.PutService(f.massage)
	f.dir.PutService(f.facial)
	f.dir.PutStaff(f.staffM)
	f.dir.PutStaff(f.staffN)
	f.dir.PutStaff(f.staffB)
	f.dir.PutClient(f.client)
	f.dir.PutClient(f.client2)

	f.clientActor = access.Actor{ID: f.client.ID, Role: access.RoleClient}
	f.client2Actor = access.Actor{ID: f.client2.ID, Role: access.RoleClient}
	f.adminA = access.Actor{ID: uuid.New(), Role: access.RoleCentreAdmin, CentreIDs: []uuid.UUID{f.centreA.ID}}
	f.adminB = access.Actor{ID: uuid.New(), Role: access.RoleCentreAdmin, CentreIDs: []uuid.UUID{f.centreB.ID}}
	f.super = access.Actor{ID: uuid.New(), Role: access.RoleSuperAdmin}
	f.staffActor = access.Actor{ID: f.staffM.ID, Role: access.RoleStaff, CentreIDs: []uuid.UUID{f.centreA.ID}}

	cfg := fixtureConfig{opts: Options{BookingTimeout: 2 * time.Second, CancellationNotice: 24 * time.Hour}}
	for _, o := range opts {
		o(&cfg)
	}
	var repo Repository = f.repo
	if cfg.repo != nil {
		repo = cfg.repo
	}

	clock := func() time.Time { return f.now }
	resolver := directory.NewResolver(f.dir)
	gen := slots.NewGenerator(resolver, repo, slots.DefaultConfig()).WithClock(clock)
	acc, err := access.NewResolver()
	require.NoError(t, err)

	extra := []ServiceOption{WithPublisher(f.publisher), WithClock(clock)}
	f.svc = NewService(repo, resolver, gen, acc, cfg.locker, cfg.opts, extra...)
	return f
}

func (f *fixture) bookRequest(staff directory.StaffMember, start time.Time) BookRequest {
	return BookRequest{
		CentreID:  f.centreA.ID,
		ServiceID: f.massage.ID,
		StaffID:   staff.ID,
		Start:     start,
		ClientID:  f.client.ID,
	}
}

// mustBook books as the client and fails the test on error.
func (f *fixture) mustBook(staff directory.StaffMember, start time.Time) *Appointment {
	f.t.Helper()
	appt, err := f.svc.Book(context.Background(), f.clientActor, f.bookRequest(staff, start))
	require.NoError(f.t, err)
	return appt
}
