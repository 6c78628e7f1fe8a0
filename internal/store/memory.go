package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"safezone-api-server/internal/geo"
	"safezone-api-server/internal/models"
	"safezone-api-server/pkg/e"
)

type memRecord struct {
	seq  uint64
	zone models.SafeZone
}

// Memory keeps safe zones in process. One RWMutex serialises mutations, so a
// read-modify-write on a record is never observed half applied.
type Memory struct {
	mu      sync.RWMutex
	seq     uint64
	records map[string]*memRecord
	index   *geo.GridIndex
	users   map[string]models.User
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*memRecord),
		index:   geo.NewGridIndex(geo.DefaultGridPrecision),
		users:   make(map[string]models.User),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) FindWithinRadius(ctx context.Context, center geo.Point, radiusMeters float64) ([]models.SafeZone, error) {
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap("store.Memory.FindWithinRadius", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := m.index.Within(center, radiusMeters/1000)
	out := make([]models.SafeZone, 0, len(hits))
	for _, h := range hits {
		rec := m.records[h.ID]
		if rec == nil || !rec.zone.IsActive {
			continue
		}
		out = append(out, rec.zone.Clone())
	}
	return out, nil
}

func (m *Memory) FindAll(ctx context.Context, filter Filter) ([]models.SafeZone, error) {
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap("store.Memory.FindAll", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.activeSorted(filter)
	out := make([]models.SafeZone, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.zone.Clone())
	}
	return out, nil
}

// activeSorted returns active records in insertion order. Caller holds mu.
func (m *Memory) activeSorted(filter Filter) []*memRecord {
	recs := make([]*memRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.zone.IsActive && filter.match(&rec.zone) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	return recs
}

func (m *Memory) FindByID(ctx context.Context, id string) (*models.SafeZone, error) {
	const op = "store.Memory.FindByID"
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	z := rec.zone.Clone()
	return &z, nil
}

func (m *Memory) Create(ctx context.Context, zone *models.SafeZone) (*models.SafeZone, error) {
	const op = "store.Memory.Create"
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	z := zone.Clone()
	z.ApplyDefaults()
	z.IsActive = true
	if err := z.Validate(); err != nil {
		return nil, e.Wrap(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	z.ID = uuid.NewString()
	z.CreatedAt = now
	z.UpdatedAt = now

	m.seq++
	m.records[z.ID] = &memRecord{seq: m.seq, zone: z}
	m.index.Put(z.ID, z.Location.Point())

	out := z.Clone()
	return &out, nil
}

func (m *Memory) Update(ctx context.Context, id string, patch models.SafeZonePatch) (*models.SafeZone, error) {
	const op = "store.Memory.Update"
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}

	z := rec.zone.Clone()
	patch.Apply(&z)
	z.ApplyDefaults()
	if err := z.Validate(); err != nil {
		return nil, e.Wrap(op, err)
	}
	z.UpdatedAt = m.now()

	rec.zone = z
	m.index.Put(id, z.Location.Point())

	out := z.Clone()
	return &out, nil
}

func (m *Memory) SoftDelete(ctx context.Context, id string) error {
	const op = "store.Memory.SoftDelete"
	if err := ctx.Err(); err != nil {
		return e.Wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || !rec.zone.IsActive {
		return fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	rec.zone.IsActive = false
	rec.zone.UpdatedAt = m.now()
	return nil
}

func (m *Memory) SetOccupancy(ctx context.Context, id string, current int) (*models.SafeZone, *models.SafeZone, error) {
	const op = "store.Memory.SetOccupancy"
	if err := ctx.Err(); err != nil {
		return nil, nil, e.Wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || !rec.zone.IsActive {
		return nil, nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}

	before := rec.zone.Clone()
	rec.zone.Status = models.NextStatus(rec.zone.Status, current, rec.zone.Capacity.Max)
	rec.zone.Capacity.Current = current
	rec.zone.UpdatedAt = m.now()

	after := rec.zone.Clone()
	return &before, &after, nil
}

func (m *Memory) AddPhoto(ctx context.Context, id string, photo models.MediaPointer) (*models.SafeZone, error) {
	const op = "store.Memory.AddPhoto"
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || !rec.zone.IsActive {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	rec.zone.Photos = append(rec.zone.Photos, photo)
	rec.zone.UpdatedAt = m.now()

	out := rec.zone.Clone()
	return &out, nil
}

func (m *Memory) CountActive(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, e.Wrap("store.Memory.CountActive", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.records {
		if rec.zone.IsActive && filter.match(&rec.zone) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) SumCapacity(ctx context.Context, filter Filter) (CapacityTotals, error) {
	if err := ctx.Err(); err != nil {
		return CapacityTotals{}, e.Wrap("store.Memory.SumCapacity", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var t CapacityTotals
	for _, rec := range m.records {
		if rec.zone.IsActive && filter.match(&rec.zone) {
			t.Total += int64(rec.zone.Capacity.Max)
			t.Occupied += int64(rec.zone.Capacity.Current)
		}
	}
	return t, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "store.Memory.FindByEmail"
	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}
	return &u, nil
}

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return e.Wrap("store.Memory.CreateUser", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	m.users[strings.ToLower(user.Email)] = *user
	return nil
}

func (m *Memory) CountUsers(ctx context.Context, email string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, e.Wrap("store.Memory.CountUsers", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.users[strings.ToLower(email)]; ok {
		return 1, nil
	}
	return 0, nil
}
