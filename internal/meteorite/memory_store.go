package meteorite

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps the dataset in memory. It is the default store of a
// single-node deployment and the reference for the SQL store in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Meteorite
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]Meteorite)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id int64) (Meteorite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return Meteorite{}, ErrNotFound
	}
	return cloneMeteorite(record), nil
}

// Search implements Store.
func (m *MemoryStore) Search(_ context.Context, filter Filter, page PageRequest) (Page, error) {
	m.mu.RLock()
	matched := make([]Meteorite, 0, len(m.records))
	for _, record := range m.records {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b Meteorite) int {
		for _, order := range page.Sort {
			c := compareProperty(a, b, order.Property)
			if order.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := int64(len(matched))
	start := min(page.Offset(), len(matched))
	end := min(start+page.Size, len(matched))
	content := make([]Meteorite, 0, end-start)
	for _, record := range matched[start:end] {
		content = append(content, cloneMeteorite(record))
	}
	return NewPage(content, page, total), nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// Trends implements Store.
func (m *MemoryStore) Trends(_ context.Context) (map[int]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[int]int64)
	for _, record := range m.records {
		if record.Year != nil {
			result[*record.Year]++
		}
	}
	return result, nil
}

// MassDistribution implements Store.
func (m *MemoryStore) MassDistribution(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]int64)
	for _, record := range m.records {
		if record.Mass != nil {
			result[MassCategory(*record.Mass)]++
		}
	}
	return result, nil
}

// Classification implements Store.
func (m *MemoryStore) Classification(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]int64)
	for _, record := range m.records {
		if record.RecClass != "" {
			result[record.RecClass]++
		}
	}
	return result, nil
}

// SaveAll implements Store.
func (m *MemoryStore) SaveAll(_ context.Context, records []Meteorite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range records {
		m.records[record.ID] = cloneMeteorite(record)
	}
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// compareProperty orders unknown values before known ones.
func compareProperty(a, b Meteorite, property string) int {
	switch property {
	case PropertyID:
		return cmp.Compare(a.ID, b.ID)
	case PropertyName:
		return strings.Compare(a.Name, b.Name)
	case PropertyRecClass:
		return strings.Compare(a.RecClass, b.RecClass)
	case PropertyFall:
		return strings.Compare(a.Fall, b.Fall)
	case PropertyMass:
		return comparePtr(a.Mass, b.Mass)
	case PropertyYear:
		return comparePtr(a.Year, b.Year)
	case PropertyRecLat:
		return comparePtr(a.RecLat, b.RecLat)
	case PropertyRecLong:
		return comparePtr(a.RecLong, b.RecLong)
	default:
		return 0
	}
}

func comparePtr[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmp.Compare(*a, *b)
	}
}

func cloneMeteorite(m Meteorite) Meteorite {
	m.Mass = clonePtr(m.Mass)
	m.Year = clonePtr(m.Year)
	m.RecLat = clonePtr(m.RecLat)
	m.RecLong = clonePtr(m.RecLong)
	return m
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Store = (*MemoryStore)(nil)
