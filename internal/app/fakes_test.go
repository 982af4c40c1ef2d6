package app_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"repscore/internal/domain"
)

// ---- fakes ----

// memRepo is an in-memory HotelRepository with the same contract as the
// MySQL adapter: soft delete hides hotels from listings and name lookup,
// the latest pointer follows collected_at with ties going to the newer
// insert, and snapshot history is append-only.
type memRepo struct {
	mu sync.Mutex

	hotels map[int64]domain.Hotel
	snaps  map[int64][]domain.Snapshot
	latest map[int64]int64
	groups map[int64]domain.Group

	nextHotel int64
	nextSnap  int64
	nextGroup int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		hotels: map[int64]domain.Hotel{},
		snaps:  map[int64][]domain.Snapshot{},
		latest: map[int64]int64{},
		groups: map[int64]domain.Group{},
	}
}

func (m *memRepo) CreateHotel(ctx context.Context, h domain.Hotel) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHotel++
	h.ID = m.nextHotel
	m.hotels[h.ID] = h
	return h.ID, nil
}

func (m *memRepo) UpdateHotel(ctx context.Context, h domain.Hotel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hotels[h.ID]; !ok {
		return domain.ErrNotFound
	}
	m.hotels[h.ID] = h
	return nil
}

func (m *memRepo) SoftDeleteHotel(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hotels[id]
	if !ok {
		return domain.ErrNotFound
	}
	h.Deleted = true
	m.hotels[id] = h
	for gid, g := range m.groups {
		kept := g.HotelIDs[:0:0]
		for _, hid := range g.HotelIDs {
			if hid != id {
				kept = append(kept, hid)
			}
		}
		g.HotelIDs = kept
		m.groups[gid] = g
	}
	return nil
}

func (m *memRepo) GetHotel(ctx context.Context, id int64) (domain.Hotel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hotels[id]
	if !ok {
		return domain.Hotel{}, domain.ErrNotFound
	}
	return h, nil
}

func (m *memRepo) ListHotels(ctx context.Context) ([]domain.Hotel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Hotel
	for _, h := range m.hotels {
		if !h.Deleted {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memRepo) FindHotelsByName(ctx context.Context, nameKey string) ([]domain.Hotel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Hotel
	for _, h := range m.hotels {
		if !h.Deleted && domain.NameKey(h.Name) == nameKey {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) InsertSnapshot(ctx context.Context, s domain.Snapshot) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hotels[s.HotelID]; !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	m.nextSnap++
	s.ID = m.nextSnap
	m.snaps[s.HotelID] = append(m.snaps[s.HotelID], s)

	cur, ok := m.latest[s.HotelID]
	if !ok {
		m.latest[s.HotelID] = s.ID
		return s, nil
	}
	for _, e := range m.snaps[s.HotelID] {
		if e.ID == cur {
			if !s.CollectedAt.Before(e.CollectedAt) {
				m.latest[s.HotelID] = s.ID
			}
			break
		}
	}
	return s, nil
}

func (m *memRepo) LatestSnapshot(ctx context.Context, hotelID int64) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.latest[hotelID]
	if !ok {
		return nil, nil
	}
	for _, e := range m.snaps[hotelID] {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListSnapshots(ctx context.Context, hotelID int64) ([]domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.Snapshot(nil), m.snaps[hotelID]...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.Before(out[j].CollectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memRepo) ListSnapshotsBetween(ctx context.Context, hotelID int64, from, to time.Time) ([]domain.Snapshot, error) {
	all, _ := m.ListSnapshots(ctx, hotelID)
	var out []domain.Snapshot
	for _, s := range all {
		if !s.CollectedAt.Before(from) && s.CollectedAt.Before(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepo) CreateGroup(ctx context.Context, g domain.Group) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGroup++
	g.ID = m.nextGroup
	m.groups[g.ID] = g
	return g.ID, nil
}

func (m *memRepo) UpdateGroup(ctx context.Context, g domain.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[g.ID]; !ok {
		return domain.ErrNotFound
	}
	m.groups[g.ID] = g
	return nil
}

func (m *memRepo) GetGroup(ctx context.Context, id int64) (domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return domain.Group{}, domain.ErrNotFound
	}
	return g, nil
}

func (m *memRepo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) DeleteGroup(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.groups, id)
	return nil
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]domain.Snapshot
	dels  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*domain.Snapshot); ok {
		*d = v
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]domain.Snapshot{}
	}
	if s, ok := v.(domain.Snapshot); ok {
		c.store[key] = s
	}
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels++
	return nil
}

type fakeCollector struct {
	out map[domain.Source]domain.RawReading
	err error
}

func (f *fakeCollector) Fetch(ctx context.Context, h domain.Hotel) (map[domain.Source]domain.RawReading, error) {
	return f.out, f.err
}

// ---- helpers ----

func ptr[T any](v T) *T { return &v }

func reading(score float64, count int) domain.RawReading {
	return domain.RawReading{Score: &score, Count: &count}
}
