package meteorite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"meteorite-explorer/internal/cache"
	"meteorite-explorer/internal/events"
)

// countingStore wraps MemoryStore and counts aggregate queries.
type countingStore struct {
	*MemoryStore
	mu     sync.Mutex
	trends int
	fail   error
}

func (s *countingStore) Trends(ctx context.Context) (map[int]int64, error) {
	s.mu.Lock()
	s.trends++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return s.MemoryStore.Trends(ctx)
}

func (s *countingStore) SaveAll(ctx context.Context, records []Meteorite) error {
	if s.fail != nil {
		return s.fail
	}
	return s.MemoryStore.SaveAll(ctx, records)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// failingCache errors on every call.
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Invalidate(context.Context) error { return errors.New("cache down") }

func (failingCache) Close() error { return nil }

func newTestService(t *testing.T, opts ...Option) (*Service, *countingStore) {
	t.Helper()
	store := &countingStore{MemoryStore: newSeededStore(t)}
	return NewService(store, opts...), store
}

func TestServiceStatisticsAreCached(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, WithCache(cache.NewMemory(), time.Minute))

	first, err := svc.Trends(ctx)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	second, err := svc.Trends(ctx)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached trends differ (-first +second):\n%s", diff)
	}
	if store.trends != 1 {
		t.Fatalf("store queried %d times, want 1", store.trends)
	}
}

func TestServiceImportInvalidatesAndPublishes(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	pub := &recordingPublisher{}
	svc, store := newTestService(t, WithCache(c, time.Minute), WithPublisher(pub), WithInstanceID("node-a"))

	if _, err := svc.Trends(ctx); err != nil {
		t.Fatalf("trends: %v", err)
	}
	if err := svc.Import(ctx, []Meteorite{{ID: 9000, Name: "New fall", Year: year(2024)}}, "batch.csv", 2); err != nil {
		t.Fatalf("import: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("cache not invalidated, %d entries left", c.Len())
	}

	trends, err := svc.Trends(ctx)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if trends[2024] != 1 || store.trends != 2 {
		t.Fatalf("stale statistics after import: %v (loads=%d)", trends, store.trends)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	event := pub.events[0]
	if event.Type != events.TypeDatasetImported || event.Source != "node-a" || event.Origin != "batch.csv" || event.Records != 1 || event.Skipped != 2 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestServiceImportFailure(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store := newTestService(t, WithPublisher(pub))
	store.fail = errors.New("disk full")

	err := svc.Import(context.Background(), []Meteorite{{ID: 1}}, "x.csv", 0)
	if err == nil {
		t.Fatal("expected import error")
	}
	if len(pub.events) != 0 {
		t.Fatalf("failed import must not be announced")
	}
}

func TestServiceHandleEvent(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	svc, _ := newTestService(t, WithCache(c, time.Minute), WithInstanceID("node-a"))

	if _, err := svc.Classification(ctx); err != nil {
		t.Fatalf("classification: %v", err)
	}

	own := events.NewDatasetImported("node-a", "a.csv", 1, 0)
	if err := svc.HandleEvent(ctx, own); err != nil {
		t.Fatalf("handle own: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("own event must not invalidate")
	}

	remote := events.NewDatasetImported("node-b", "b.csv", 1, 0)
	if err := svc.HandleEvent(ctx, remote); err != nil {
		t.Fatalf("handle remote: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("remote import must invalidate the cache")
	}
}

func TestServiceCacheFailureFallsBackToStore(t *testing.T) {
	svc, store := newTestService(t, WithCache(failingCache{}, time.Minute))

	trends, err := svc.Trends(context.Background())
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if trends[1880] != 1 || store.trends != 1 {
		t.Fatalf("unexpected trends %v", trends)
	}
}

func TestServiceStoreErrorIsReturned(t *testing.T) {
	svc, store := newTestService(t, WithCache(cache.NewMemory(), time.Minute))
	store.fail = errors.New("connection reset")

	if _, err := svc.Trends(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestServiceSearchValidation(t *testing.T) {
	svc, _ := newTestService(t, WithPageLimits(PageLimits{DefaultSize: 2, MaxSize: 3}))
	ctx := context.Background()

	if _, err := svc.Search(ctx, Filter{MinMass: f64(10), MaxMass: f64(1)}, PageRequest{}); !IsInvalidQuery(err) {
		t.Fatalf("expected invalid query, got %v", err)
	}

	page, err := svc.List(ctx, "", PageRequest{Size: 50})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Size != 3 || len(page.Content) != 3 {
		t.Fatalf("page size not clamped: %+v", page)
	}

	page, err = svc.List(ctx, " abee ", PageRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]int64{6}, ids(page)); diff != "" {
		t.Fatalf("list by name (-want +got):\n%s", diff)
	}
}

func TestServiceWithoutStore(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Get(context.Background(), 1); err == nil {
		t.Fatal("expected unavailable error")
	}
}
