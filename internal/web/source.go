package web

import (
	"context"

	"meteorite-explorer/internal/meteorite"
	sdk "meteorite-explorer/sdk/go/meteorite"
)

// Source supplies the data behind the pages. *meteorite.Service is the
// local implementation; RemoteSource reads another instance over HTTP.
type Source interface {
	Search(ctx context.Context, filter meteorite.Filter, page meteorite.PageRequest) (meteorite.Page, error)
	Get(ctx context.Context, id int64) (meteorite.Meteorite, error)
	Trends(ctx context.Context) (map[int]int64, error)
	MassDistribution(ctx context.Context) (map[string]int64, error)
	Classification(ctx context.Context) (map[string]int64, error)
}

// RemoteSource adapts the REST client to Source.
type RemoteSource struct {
	client *sdk.Client
}

// NewRemoteSource wraps client.
func NewRemoteSource(client *sdk.Client) *RemoteSource {
	return &RemoteSource{client: client}
}

// Search implements Source.
func (r *RemoteSource) Search(ctx context.Context, filter meteorite.Filter, page meteorite.PageRequest) (meteorite.Page, error) {
	params := sdk.SearchParams{
		Name:     filter.Name,
		RecClass: filter.RecClass,
		Fall:     filter.Fall,
		Year:     filter.Year,
		MinMass:  filter.MinMass,
		MaxMass:  filter.MaxMass,
	}
	paging := sdk.PageParams{Page: page.Page, Size: page.Size}
	for _, order := range page.Sort {
		s := order.Property
		if order.Desc {
			s += ",desc"
		}
		paging.Sort = append(paging.Sort, s)
	}
	result, err := r.client.Search(ctx, params, paging)
	if err != nil {
		return meteorite.Page{}, err
	}
	content := make([]meteorite.Meteorite, 0, len(result.Content))
	for _, m := range result.Content {
		content = append(content, fromSDK(m))
	}
	return meteorite.Page{
		Content:          content,
		TotalPages:       result.TotalPages,
		TotalElements:    result.TotalElements,
		Size:             result.Size,
		Number:           result.Number,
		NumberOfElements: result.NumberOfElements,
		First:            result.First,
		Last:             result.Last,
		Empty:            result.Empty,
	}, nil
}

// Get implements Source. A 404 from the remote side becomes
// meteorite.ErrNotFound.
func (r *RemoteSource) Get(ctx context.Context, id int64) (meteorite.Meteorite, error) {
	m, err := r.client.Get(ctx, id)
	if sdk.IsNotFound(err) {
		return meteorite.Meteorite{}, meteorite.ErrNotFound
	}
	if err != nil {
		return meteorite.Meteorite{}, err
	}
	return fromSDK(m), nil
}

// Trends implements Source.
func (r *RemoteSource) Trends(ctx context.Context) (map[int]int64, error) {
	return r.client.Trends(ctx)
}

// MassDistribution implements Source.
func (r *RemoteSource) MassDistribution(ctx context.Context) (map[string]int64, error) {
	return r.client.MassDistribution(ctx)
}

// Classification implements Source.
func (r *RemoteSource) Classification(ctx context.Context) (map[string]int64, error) {
	return r.client.Classification(ctx)
}

func fromSDK(m sdk.Meteorite) meteorite.Meteorite {
	return meteorite.Meteorite{
		ID:       m.ID,
		Name:     m.Name,
		RecClass: m.RecClass,
		Fall:     m.Fall,
		Mass:     m.Mass,
		Year:     m.Year,
		RecLat:   m.RecLat,
		RecLong:  m.RecLong,
	}
}

var (
	_ Source = (*meteorite.Service)(nil)
	_ Source = (*RemoteSource)(nil)
)
