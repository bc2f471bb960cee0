package meteorite

import "context"

// Store abstracts persistence of the dataset. Search receives a normalized
// filter and page request.
type Store interface {
	Get(ctx context.Context, id int64) (Meteorite, error)
	Search(ctx context.Context, filter Filter, page PageRequest) (Page, error)
	Count(ctx context.Context) (int64, error)
	Trends(ctx context.Context) (map[int]int64, error)
	MassDistribution(ctx context.Context) (map[string]int64, error)
	Classification(ctx context.Context) (map[string]int64, error)
	// SaveAll upserts records by id.
	SaveAll(ctx context.Context, records []Meteorite) error
	Close() error
}
