package seed

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/wellness-scheduling/internal/directory"
)

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(42, DefaultCounts())
	b := Generate(42, DefaultCounts())
	assert.Equal(t, a, b)

	c := Generate(43, DefaultCounts())
	assert.NotEqual(t, a.Clients[0].ID, c.Clients[0].ID)
}

func TestGenerateCounts(t *testing.T) {
	ds := Generate(7, Counts{Centres: 2, StaffPerCentre: 5, Clients: 20, LegacyEvery: 5})

	assert.Len(t, ds.Centres, 2)
	assert.Len(t, ds.Staff, 10)
	assert.Len(t, ds.Clients, 20)
	assert.Len(t, ds.Services, len(catalogue))

	legacy := 0
	for _, m := range ds.Staff {
		if m.LegacyCentreName != "" {
			legacy++
			assert.Empty(t, m.CentreIDs)
		}
	}
	assert.Equal(t, 2, legacy)

	for _, c := range ds.Centres {
		assert.Contains(t, c.ServiceIDs, ds.Services[0].ID, "even catalogue entries are offered everywhere")
	}
}

func TestLoadMemoryFeedsResolver(t *testing.T) {
	ds := Generate(1, DefaultCounts())
	repo := directory.NewMemoryRepository()
	ds.LoadMemory(repo)

	staff, err := directory.NewResolver(repo).EligibleStaff(context.Background(), ds.Centres[0].ID, ds.Services[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, staff)

	client, err := repo.GetClient(context.Background(), ds.Clients[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ds.Clients[0].Name, client.Name)
}

func TestAdminForIsStablePerCentre(t *testing.T) {
	ds := Generate(9, DefaultCounts())
	a := AdminFor(ds.Centres[0])
	assert.Equal(t, a, AdminFor(ds.Centres[0]))
	assert.NotEqual(t, a.ID, AdminFor(ds.Centres[1]).ID)
	assert.Equal(t, []uuid.UUID{ds.Centres[0].ID}, a.CentreIDs)
}
