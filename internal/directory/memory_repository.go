package directory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps reference data in process. Put* copies its input.
type MemoryRepository struct {
	mu       sync.RWMutex
	centres  map[uuid.UUID]Centre
	services map[uuid.UUID]Service
	staff    map[uuid.UUID]StaffMember
	clients  map[uuid.UUID]Client
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		centres:  make(map[uuid.UUID]Centre),
		services: make(map[uuid.UUID]Service),
		staff:    make(map[uuid.UUID]StaffMember),
		clients:  make(map[uuid.UUID]Client),
	}
}

func (r *MemoryRepository) PutCentre(c Centre) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.StaffIDs = slices.Clone(c.StaffIDs)
	c.ServiceIDs = slices.Clone(c.ServiceIDs)
	r.centres[c.ID] = c
}

func (r *MemoryRepository) PutService(s Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CentreIDs = slices.Clone(s.CentreIDs)
	s.RequiredQualifications = slices.Clone(s.RequiredQualifications)
	r.services[s.ID] = s
}

func (r *MemoryRepository) PutStaff(m StaffMember) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.CentreIDs = slices.Clone(m.CentreIDs)
	m.Qualifications = slices.Clone(m.Qualifications)
	r.staff[m.ID] = m
}

func (r *MemoryRepository) PutClient(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

func (r *MemoryRepository) GetCentre(_ context.Context, id uuid.UUID) (*Centre, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.centres[id]
	if !ok {
		return nil, ErrCentreNotFound
	}
	c.StaffIDs = slices.Clone(c.StaffIDs)
	c.ServiceIDs = slices.Clone(c.ServiceIDs)
	return &c, nil
}

func (r *MemoryRepository) GetService(_ context.Context, id uuid.UUID) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	s.CentreIDs = slices.Clone(s.CentreIDs)
	s.RequiredQualifications = slices.Clone(s.RequiredQualifications)
	return &s, nil
}

func (r *MemoryRepository) GetStaff(_ context.Context, id uuid.UUID) (*StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.staff[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	m.CentreIDs = slices.Clone(m.CentreIDs)
	m.Qualifications = slices.Clone(m.Qualifications)
	return &m, nil
}

func (r *MemoryRepository) GetClient(_ context.Context, id uuid.UUID) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) ListActiveStaff(_ context.Context) ([]StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StaffMember, 0, len(r.staff))
	for _, m := range r.staff {
		if !m.Active {
			continue
		}
		m.CentreIDs = slices.Clone(m.CentreIDs)
		m.Qualifications = slices.Clone(m.Qualifications)
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b StaffMember) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}
