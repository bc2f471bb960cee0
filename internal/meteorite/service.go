package meteorite

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"meteorite-explorer/internal/cache"
	xerrors "meteorite-explorer/internal/errors"
	"meteorite-explorer/internal/events"
	"meteorite-explorer/internal/observability/metrics"
	"meteorite-explorer/pkg/logger"
)

const (
	keyTrends         = "stats:trends"
	keyMass           = "stats:mass-distribution"
	keyClassification = "stats:classification"
)

// Service answers explorer queries on top of a Store. Aggregate statistics
// are cached; imports invalidate the cache and announce themselves on the
// event publisher.
type Service struct {
	store      Store
	cache      cache.Cache
	publisher  events.Publisher
	ttl        time.Duration
	limits     PageLimits
	instanceID string
	log        *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCache sets the statistics cache and its entry lifetime.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
		s.ttl = ttl
	}
}

// WithPublisher sets where import events go.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithPageLimits overrides the default and maximum page size.
func WithPageLimits(limits PageLimits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

// WithInstanceID sets the identifier stamped on published events.
func WithInstanceID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.instanceID = id
		}
	}
}

// NewService builds a Service around store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		cache:      cache.Nop{},
		publisher:  events.Nop{},
		ttl:        time.Minute,
		limits:     DefaultPageLimits,
		instanceID: uuid.NewString(),
		log:        logger.Named("meteorite"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// InstanceID identifies this service in published events.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// PageLimits returns the paging bounds in effect.
func (s *Service) PageLimits() PageLimits {
	return s.limits
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return xerrors.New(xerrors.CodeUnavailable, "meteorite store not initialized")
	}
	return nil
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id int64) (Meteorite, error) {
	if err := s.ready(); err != nil {
		return Meteorite{}, err
	}
	s.log.DebugContext(ctx, "get meteorite", slog.Int64("id", id))
	return s.store.Get(ctx, id)
}

// List pages through all records, or those whose name contains name.
func (s *Service) List(ctx context.Context, name string, page PageRequest) (Page, error) {
	return s.Search(ctx, Filter{Name: name}, page)
}

// Search pages through the records matching filter.
func (s *Service) Search(ctx context.Context, filter Filter, page PageRequest) (Page, error) {
	if err := s.ready(); err != nil {
		return Page{}, err
	}
	filter = filter.Normalized()
	if filter.MinMass != nil && filter.MaxMass != nil && *filter.MinMass > *filter.MaxMass {
		return Page{}, invalidQuery("minMass %g exceeds maxMass %g", *filter.MinMass, *filter.MaxMass)
	}
	page, err := page.Normalize(s.limits)
	if err != nil {
		return Page{}, err
	}
	s.log.DebugContext(ctx, "search meteorites",
		slog.String("name", filter.Name),
		slog.String("recclass", filter.RecClass),
		slog.String("fall", filter.Fall),
		slog.Int("page", page.Page),
		slog.Int("size", page.Size),
	)
	return s.store.Search(ctx, filter, page)
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.store.Count(ctx)
}

// Trends counts landings per year.
func (s *Service) Trends(ctx context.Context) (map[int]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return cached(ctx, s, keyTrends, s.store.Trends)
}

// MassDistribution counts records per mass bucket.
func (s *Service) MassDistribution(ctx context.Context) (map[string]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return cached(ctx, s, keyMass, s.store.MassDistribution)
}

// Classification counts records per recclass.
func (s *Service) Classification(ctx context.Context) (map[string]int64, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return cached(ctx, s, keyClassification, s.store.Classification)
}

// Import stores a batch, drops cached statistics and publishes a
// dataset.imported event. skipped is the number of source rows the caller
// could not turn into records; it is only reported.
func (s *Service) Import(ctx context.Context, records []Meteorite, origin string, skipped int) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.SaveAll(ctx, records); err != nil {
		return xerrors.Wrap(CodeImportFailure, err, "store meteorite batch")
	}
	s.invalidate(ctx)
	metrics.ObserveImport(len(records), skipped)

	event := events.NewDatasetImported(s.instanceID, origin, len(records), skipped)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WarnContext(ctx, "publish import event failed", slog.Any("error", err), slog.String("event_id", event.ID))
	}
	logger.Audit().InfoContext(ctx, "dataset imported",
		slog.String("event_id", event.ID),
		slog.String("origin", origin),
		slog.Int("records", len(records)),
		slog.Int("skipped", skipped),
	)
	return nil
}

// HandleEvent reacts to events from other instances. Imports done elsewhere
// make the local statistics stale.
func (s *Service) HandleEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.TypeDatasetImported || event.Source == s.instanceID {
		return nil
	}
	s.log.InfoContext(ctx, "remote import observed", slog.String("source", event.Source), slog.Int("records", event.Records))
	s.invalidate(ctx)
	return nil
}

// Close releases the store, cache and publisher.
func (s *Service) Close() error {
	var result *multierror.Error
	if s.store != nil {
		result = multierror.Append(result, s.store.Close())
	}
	result = multierror.Append(result, s.cache.Close(), s.publisher.Close())
	return result.ErrorOrNil()
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed", slog.Any("error", err))
	}
}

// cached serves key from the cache, loading and storing it on a miss. Cache
// failures degrade to a direct load.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			metrics.ObserveCacheLookup(true)
			return value, nil
		}
		s.log.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
	}
	metrics.ObserveCacheLookup(false)

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}
	if raw, err := json.Marshal(value); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.log.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return value, nil
}
