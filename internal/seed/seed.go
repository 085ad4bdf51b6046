// Package seed generates a fake directory of centres, services, staff and
// clients. Generation is deterministic for a given seed, so a load generator
// can rebuild the same identities the server was seeded with.
package seed

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/directory"
)

type Counts struct {
	Centres        int
	StaffPerCentre int
	Clients        int
	// LegacyEvery gives every n-th staff member only a free-text centre name.
	// Zero disables legacy records.
	LegacyEvery int
}

func DefaultCounts() Counts {
	return Counts{Centres: 3, StaffPerCentre: 4, Clients: 50, LegacyEvery: 5}
}

type Dataset struct {
	Centres  []directory.Centre
	Services []directory.Service
	Staff    []directory.StaffMember
	Clients  []directory.Client
}

type catalogueEntry struct {
	name          string
	category      string
	minutes       int
	priceCents    int64
	qualification string
}

var catalogue = []catalogueEntry{
	{"Swedish Massage", "massage", 60, 8500, "massage"},
	{"Deep Tissue Massage", "massage", 60, 9500, "massage"},
	{"Hot Stone Therapy", "massage", 90, 12000, "massage"},
	{"Express Facial", "skin", 30, 4500, "esthetics"},
	{"Signature Facial", "skin", 60, 8000, "esthetics"},
	{"Reflexology", "holistic", 45, 6000, ""},
	{"Acupuncture", "holistic", 45, 7000, "acupuncture"},
}

var qualifications = []string{"massage", "esthetics", "acupuncture"}

// Generate builds a dataset. A zero seed picks a random one.
func Generate(seed uint64, counts Counts) Dataset {
	faker := gofakeit.New(seed)
	newID := func() uuid.UUID { return uuid.MustParse(faker.UUID()) }

	var ds Dataset
	for _, entry := range catalogue {
		svc := directory.Service{
			ID:              newID(),
			Name:            entry.name,
			Category:        entry.category,
			DurationMinutes: entry.minutes,
			PriceCents:      entry.priceCents,
			Active:          true,
		}
		if entry.qualification != "" {
			svc.RequiredQualifications = []string{entry.qualification}
		}
		if entry.minutes >= 90 {
			svc.Policy.CancellationNoticeHours = 48
		}
		ds.Services = append(ds.Services, svc)
	}

	for i := 0; i < counts.Centres; i++ {
		centre := directory.Centre{
			ID:             newID(),
			Name:           faker.City() + " Wellness Centre",
			Address:        faker.Street(),
			Timezone:       "UTC",
			OperatingHours: weekHours(faker.Bool()),
			Active:         true,
		}
		// every centre offers a random subset of at least half the catalogue
		for j := range ds.Services {
			if j%2 == 0 || faker.Bool() {
				centre.ServiceIDs = append(centre.ServiceIDs, ds.Services[j].ID)
				ds.Services[j].CentreIDs = append(ds.Services[j].CentreIDs, centre.ID)
			}
		}
		ds.Centres = append(ds.Centres, centre)
	}

	seq := 0
	for ci := range ds.Centres {
		for k := 0; k < counts.StaffPerCentre; k++ {
			seq++
			member := directory.StaffMember{
				ID:             newID(),
				Name:           faker.Name(),
				Email:          faker.Email(),
				Phone:          faker.Phone(),
				Qualifications: pickQualifications(faker),
				Active:         true,
			}
			if counts.LegacyEvery > 0 && seq%counts.LegacyEvery == 0 {
				member.LegacyCentreName = ds.Centres[ci].Name
			} else {
				member.CentreIDs = []uuid.UUID{ds.Centres[ci].ID}
				ds.Centres[ci].StaffIDs = append(ds.Centres[ci].StaffIDs, member.ID)
			}
			ds.Staff = append(ds.Staff, member)
		}
	}

	for i := 0; i < counts.Clients; i++ {
		ds.Clients = append(ds.Clients, directory.Client{
			ID:    newID(),
			Name:  faker.Name(),
			Email: faker.Email(),
			Phone: faker.Phone(),
		})
	}
	return ds
}

// weekHours opens Monday to Saturday, with a shorter Saturday when
// shortSaturday is set. Sunday stays closed.
func weekHours(shortSaturday bool) map[time.Weekday]directory.Hours {
	hours := make(map[time.Weekday]directory.Hours, 6)
	for d := time.Monday; d <= time.Friday; d++ {
		hours[d] = directory.Hours{Open: "09:00", Close: "17:00"}
	}
	hours[time.Saturday] = directory.Hours{Open: "09:00", Close: "17:00"}
	if shortSaturday {
		hours[time.Saturday] = directory.Hours{Open: "10:00", Close: "14:00"}
	}
	return hours
}

func pickQualifications(faker *gofakeit.Faker) []string {
	var out []string
	for _, q := range qualifications {
		if faker.Bool() {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		out = append(out, faker.RandomString(qualifications))
	}
	return out
}

// LoadMemory puts the dataset into an in-process directory.
func (ds Dataset) LoadMemory(repo *directory.MemoryRepository) {
	for _, s := range ds.Services {
		repo.PutService(s)
	}
	for _, c := range ds.Centres {
		repo.PutCentre(c)
	}
	for _, m := range ds.Staff {
		repo.PutStaff(m)
	}
	for _, c := range ds.Clients {
		repo.PutClient(c)
	}
}

// AdminFor returns the centre admin identity for centre. Admins are not
// directory records; the ID is derived from the centre so every process
// agrees on it.
func AdminFor(centre directory.Centre) access.Actor {
	return access.Actor{
		ID:        uuid.NewSHA1(centre.ID, []byte("centre-admin")),
		Role:      access.RoleCentreAdmin,
		CentreIDs: []uuid.UUID{centre.ID},
	}
}

// ClientActor is the identity a seeded client books with.
func ClientActor(c directory.Client) access.Actor {
	return access.Actor{ID: c.ID, Role: access.RoleClient}
}
